package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	schedulerdomain "github.com/mutualabs/mutua/internal/scheduler/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() schedulerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *schedulerdomain.RecomputeJob) error {
	return db.WithContext(ctx).Create(job).Error
}

// ClaimPending is a two-step claim: stamp the run token on unclaimed
// pending jobs, then read back the stamped rows. Workers polling
// concurrently each stamp a disjoint set.
func (r *repo) ClaimPending(ctx context.Context, db *gorm.DB, limit int, runToken string) ([]schedulerdomain.RecomputeJob, error) {
	sub := db.WithContext(ctx).
		Model(&schedulerdomain.RecomputeJob{}).
		Select("id").
		Where("status = ? AND run_token = ''", schedulerdomain.JobStatusPending).
		Order("id asc").
		Limit(limit)
	err := db.WithContext(ctx).
		Model(&schedulerdomain.RecomputeJob{}).
		Where("id IN (?)", sub).
		Update("run_token", runToken).Error
	if err != nil {
		return nil, err
	}

	var jobs []schedulerdomain.RecomputeJob
	err = db.WithContext(ctx).
		Where("status = ? AND run_token = ?", schedulerdomain.JobStatusPending, runToken).
		Order("id asc").
		Find(&jobs).Error
	return jobs, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, job *schedulerdomain.RecomputeJob) error {
	return db.WithContext(ctx).Save(job).Error
}

func (r *repo) ListByAffiliate(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) ([]schedulerdomain.RecomputeJob, error) {
	var jobs []schedulerdomain.RecomputeJob
	err := db.WithContext(ctx).
		Where("org_id = ? AND affiliate_id = ?", orgID, affiliateID).
		Order("id asc").
		Find(&jobs).Error
	return jobs, err
}
