package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingruledomain.Repository {
	return &repo{}
}

func (r *repo) InsertFlat(ctx context.Context, db *gorm.DB, rule *pricingruledomain.FlatRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindFlatByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*pricingruledomain.FlatRule, error) {
	var rule pricingruledomain.FlatRule
	err := db.WithContext(ctx).
		Where("org_id = ? AND idempotency_key = ?", orgID, key).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repo) ListFlat(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]pricingruledomain.FlatRule, error) {
	var items []pricingruledomain.FlatRule
	err := db.WithContext(ctx).
		Model(&pricingruledomain.FlatRule{}).
		Where("org_id = ?", orgID).
		Order("valid_from desc").
		Find(&items).Error
	return items, err
}

func (r *repo) InsertTier(ctx context.Context, db *gorm.DB, rule *pricingruledomain.TierRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindTierByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*pricingruledomain.TierRule, error) {
	var rule pricingruledomain.TierRule
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repo) ListTiers(ctx context.Context, db *gorm.DB, orgID snowflake.ID, relationshipTypeID snowflake.ID) ([]pricingruledomain.TierRule, error) {
	query := db.WithContext(ctx).
		Model(&pricingruledomain.TierRule{}).
		Where("org_id = ?", orgID)
	if relationshipTypeID != 0 {
		query = query.Where("relationship_type_id = ?", relationshipTypeID)
	}

	var items []pricingruledomain.TierRule
	err := query.Order("relationship_type_id asc, valid_from desc, count_from asc").Find(&items).Error
	return items, err
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, rule *pricingruledomain.TierRule) error {
	return db.WithContext(ctx).Save(rule).Error
}

func (r *repo) SnapshotAt(ctx context.Context, db *gorm.DB, orgID snowflake.ID, asOf time.Time) (*pricingruledomain.Snapshot, error) {
	var flat []pricingruledomain.FlatRule
	err := db.WithContext(ctx).
		Model(&pricingruledomain.FlatRule{}).
		Where("org_id = ? AND active = ? AND valid_from <= ?", orgID, true, asOf).
		Order("valid_from desc").
		Find(&flat).Error
	if err != nil {
		return nil, err
	}

	var tiers []pricingruledomain.TierRule
	err = db.WithContext(ctx).
		Model(&pricingruledomain.TierRule{}).
		Where("org_id = ? AND active = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)", orgID, true, asOf, asOf).
		Order("valid_from desc, count_from asc").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}

	return &pricingruledomain.Snapshot{
		TakenAt: asOf,
		Flat:    flat,
		Tiers:   tiers,
	}, nil
}
