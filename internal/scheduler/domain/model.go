// Package domain defines the recompute job queue consumed by the
// background worker.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// RecomputeJob asks the worker to recompute one affiliate's dependents
// charge. Delivery is at-least-once; a zero diff recompute is a no-op.
type RecomputeJob struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"index;not null" json:"org_id"`
	AffiliateID snowflake.ID `gorm:"index;not null" json:"affiliate_id"`
	Status      JobStatus    `gorm:"type:text;not null;index" json:"status"`
	RunToken    string       `gorm:"type:text" json:"run_token,omitempty"`
	Note        string       `gorm:"type:text" json:"note,omitempty"`
	Error       string       `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

func (RecomputeJob) TableName() string { return "recompute_jobs" }

// Enqueuer is the write side exposed to attribution activation.
type Enqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, affiliateID snowflake.ID) (*RecomputeJob, error)
}

// RecomputeOutcome reports what one affiliate recompute did. A skip is
// a completed run that had nothing eligible to post against.
type RecomputeOutcome struct {
	Posted     bool
	DeltaCents int64
	SkipReason string
}

// Recomputer resolves an affiliate's dependents charge against the
// current rules and posts the delta since the last posted charge.
type Recomputer interface {
	RecomputeAffiliate(ctx context.Context, affiliateID snowflake.ID) (RecomputeOutcome, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *RecomputeJob) error
	// ClaimPending stamps runToken on up to limit pending jobs and
	// returns them. Jobs already stamped by a concurrent worker are
	// left alone.
	ClaimPending(ctx context.Context, db *gorm.DB, limit int, runToken string) ([]RecomputeJob, error)
	Update(ctx context.Context, db *gorm.DB, job *RecomputeJob) error
	ListByAffiliate(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) ([]RecomputeJob, error)
}
