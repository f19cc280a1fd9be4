package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() relationshipdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rt *relationshipdomain.RelationshipType) error {
	return db.WithContext(ctx).Create(rt).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*relationshipdomain.RelationshipType, error) {
	var rt relationshipdomain.RelationshipType
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&rt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code int) (*relationshipdomain.RelationshipType, error) {
	var rt relationshipdomain.RelationshipType
	err := db.WithContext(ctx).
		Where("org_id = ? AND code = ?", orgID, code).
		First(&rt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, includeInactive bool) ([]relationshipdomain.RelationshipType, error) {
	query := db.WithContext(ctx).
		Model(&relationshipdomain.RelationshipType{}).
		Where("org_id = ?", orgID)
	if !includeInactive {
		query = query.Where("active = ?", true)
	}

	var items []relationshipdomain.RelationshipType
	err := query.Order("code asc").Find(&items).Error
	return items, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rt *relationshipdomain.RelationshipType) error {
	return db.WithContext(ctx).Save(rt).Error
}
