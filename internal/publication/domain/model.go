// Package domain defines the publication batch that freezes rule edits
// and fans out dependents-charge recomputation.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
)

var (
	ErrInvalidOrganization = errors.New("publication_invalid_organization")
	ErrInvalidID           = errors.New("publication_invalid_id")
	ErrNotFound            = errors.New("publication_not_found")
	ErrNotDraft            = errors.New("publication_not_draft")
)

// Publication is the draft/publish batch. published and cancelled are
// terminal; at most one draft exists per organization.
type Publication struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"index;uniqueIndex:ux_publications_org_draft,where:status = 'draft';not null" json:"org_id"`
	Status      Status       `gorm:"type:text;not null" json:"status"`
	Comment     string       `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
	CancelledAt *time.Time   `json:"cancelled_at,omitempty"`
}

func (Publication) TableName() string { return "publications" }

// AffiliateOutcome records why one affiliate was skipped or failed
// during a publish batch.
type AffiliateOutcome struct {
	AffiliateID snowflake.ID `json:"affiliate_id"`
	Reason      string       `json:"reason"`
}

// PublishResult aggregates the per-affiliate fan-out. A publish
// succeeds with failures present; they are surfaced, not fatal.
type PublishResult struct {
	PublicationID snowflake.ID       `json:"publication_id"`
	Adjusted      int                `json:"adjusted"`
	Unchanged     int                `json:"unchanged"`
	Skipped       []AffiliateOutcome `json:"skipped,omitempty"`
	Failed        []AffiliateOutcome `json:"failed,omitempty"`
}

type Service interface {
	OpenDraft(ctx context.Context, comment string) (*Publication, error)
	Publish(ctx context.Context, id string) (*PublishResult, error)
	Cancel(ctx context.Context, id string) (*Publication, error)
	Get(ctx context.Context, id string) (*Publication, error)
	List(ctx context.Context) ([]Publication, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Publication) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Publication, error)
	FindDraft(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Publication, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Publication, error)
	// TransitionFromDraft flips status with an optimistic
	// `UPDATE ... WHERE status = 'draft'` and reports whether the row
	// was won.
	TransitionFromDraft(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, to Status, at time.Time) (bool, error)
}
