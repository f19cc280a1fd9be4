package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() rosterdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *rosterdomain.Dependent) error {
	return db.WithContext(ctx).Create(d).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*rosterdomain.Dependent, error) {
	var d rosterdomain.Dependent
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *repo) ListByAffiliate(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) ([]rosterdomain.Dependent, error) {
	var items []rosterdomain.Dependent
	err := db.WithContext(ctx).
		Model(&rosterdomain.Dependent{}).
		Where("org_id = ? AND affiliate_id = ?", orgID, affiliateID).
		Order("created_at asc").
		Find(&items).Error
	return items, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, d *rosterdomain.Dependent) error {
	return db.WithContext(ctx).Save(d).Error
}

func (r *repo) CountCountable(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) (int, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&rosterdomain.Dependent{}).
		Where("org_id = ? AND affiliate_id = ? AND active = ? AND counts_toward_tier = ?", orgID, affiliateID, true, true).
		Count(&count).Error
	return int(count), err
}

func (r *repo) CountCountableByRelationship(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) (map[snowflake.ID]int, error) {
	var rows []struct {
		RelationshipTypeID snowflake.ID
		Total              int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT relationship_type_id, COUNT(*) AS total
		 FROM dependents
		 WHERE org_id = ? AND affiliate_id = ? AND active = ? AND counts_toward_tier = ?
		 GROUP BY relationship_type_id`,
		orgID, affiliateID, true, true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[snowflake.ID]int, len(rows))
	for _, row := range rows {
		counts[row.RelationshipTypeID] = row.Total
	}
	return counts, nil
}
