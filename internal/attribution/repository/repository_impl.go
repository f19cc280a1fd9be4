package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	attributiondomain "github.com/mutualabs/mutua/internal/attribution/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() attributiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, a *attributiondomain.Attribution) error {
	return db.WithContext(ctx).Create(a).Error
}

func (r *repo) FindByAffiliate(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) (*attributiondomain.Attribution, error) {
	var a attributiondomain.Attribution
	err := db.WithContext(ctx).
		Where("org_id = ? AND affiliate_id = ?", orgID, affiliateID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, a *attributiondomain.Attribution) error {
	return db.WithContext(ctx).Save(a).Error
}

func (r *repo) ListWithDependentsAccount(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]attributiondomain.Attribution, error) {
	var items []attributiondomain.Attribution
	err := db.WithContext(ctx).
		Where("org_id = ? AND dependents_account_id IS NOT NULL", orgID).
		Order("affiliate_id asc").
		Find(&items).Error
	return items, err
}
