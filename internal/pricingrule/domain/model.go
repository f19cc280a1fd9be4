// Package domain defines the versioned pricing rules: the flat
// co-insurance price and the count-tiered dependent price bands.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FlatRule is the co-insurance price effective from ValidFrom until
// superseded by a rule with a later ValidFrom.
type FlatRule struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID `gorm:"not null;index" json:"org_id"`
	PriceCents     int64        `gorm:"not null" json:"price_cents"`
	ValidFrom      time.Time    `gorm:"not null;index" json:"valid_from"`
	Active         bool         `gorm:"not null;default:true" json:"active"`
	IdempotencyKey *string      `gorm:"type:text;uniqueIndex" json:"-"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (FlatRule) TableName() string { return "flat_rules" }

// TierRule prices a contiguous dependent-count band for one
// relationship type. CountTo nil means unbounded above; ValidTo nil
// means open-ended.
type TierRule struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID              snowflake.ID      `gorm:"not null;index" json:"org_id"`
	RelationshipTypeID snowflake.ID      `gorm:"not null;index" json:"relationship_type_id"`
	CountFrom          int               `gorm:"not null" json:"count_from"`
	CountTo            *int              `gorm:"" json:"count_to,omitempty"`
	ValidFrom          time.Time         `gorm:"not null;index" json:"valid_from"`
	ValidTo            *time.Time        `gorm:"" json:"valid_to,omitempty"`
	PriceCents         int64             `gorm:"not null" json:"price_cents"`
	Active             bool              `gorm:"not null;default:true" json:"active"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TierRule) TableName() string { return "tier_rules" }

// Covers reports whether the rule applies to the given count on the
// given date.
func (r TierRule) Covers(count int, asOf time.Time) bool {
	if !r.Active {
		return false
	}
	if asOf.Before(r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && asOf.After(*r.ValidTo) {
		return false
	}
	if count < r.CountFrom {
		return false
	}
	if r.CountTo != nil && count > *r.CountTo {
		return false
	}
	return true
}

// Overlaps reports whether two rules for the same relationship type
// can both match some (count, date) pair.
func (r TierRule) Overlaps(other TierRule) bool {
	if r.RelationshipTypeID != other.RelationshipTypeID {
		return false
	}
	countsOverlap := true
	if r.CountTo != nil && other.CountFrom > *r.CountTo {
		countsOverlap = false
	}
	if other.CountTo != nil && r.CountFrom > *other.CountTo {
		countsOverlap = false
	}
	if !countsOverlap {
		return false
	}
	if r.ValidTo != nil && other.ValidFrom.After(*r.ValidTo) {
		return false
	}
	if other.ValidTo != nil && r.ValidFrom.After(*other.ValidTo) {
		return false
	}
	return true
}

var (
	ErrInvalidOrganization = errors.New("pricingrule_invalid_organization")
	ErrInvalidID           = errors.New("pricingrule_invalid_id")
	ErrInvalidPrice        = errors.New("pricingrule_invalid_price")
	ErrInvalidCountBounds  = errors.New("pricingrule_invalid_count_bounds")
	ErrInvalidValidity     = errors.New("pricingrule_invalid_validity")
	ErrInvalidRelationship = errors.New("pricingrule_invalid_relationship")
	ErrOverlappingTiers    = errors.New("pricingrule_overlapping_tiers")
	ErrNotFound            = errors.New("pricingrule_not_found")
)

type CreateFlatRequest struct {
	PriceCents     int64     `json:"price_cents"`
	ValidFrom      time.Time `json:"valid_from"`
	IdempotencyKey string    `json:"-"`
}

type CreateTierRequest struct {
	RelationshipTypeID string         `json:"relationship_type_id"`
	CountFrom          int            `json:"count_from"`
	CountTo            *int           `json:"count_to,omitempty"`
	ValidFrom          time.Time      `json:"valid_from"`
	ValidTo            *time.Time     `json:"valid_to,omitempty"`
	PriceCents         int64          `json:"price_cents"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

type UpdateTierRequest struct {
	CountFrom  *int       `json:"count_from,omitempty"`
	CountTo    *int       `json:"count_to,omitempty"`
	ValidTo    *time.Time `json:"valid_to,omitempty"`
	PriceCents *int64     `json:"price_cents,omitempty"`
}

type Service interface {
	CreateFlat(ctx context.Context, req CreateFlatRequest) (*FlatRule, error)
	ListFlat(ctx context.Context) ([]FlatRule, error)
	// CreateTiers validates the submitted batch as a whole: tiers in
	// one submission must be mutually non-overlapping.
	CreateTiers(ctx context.Context, reqs []CreateTierRequest) ([]TierRule, error)
	UpdateTier(ctx context.Context, id string, req UpdateTierRequest) (*TierRule, error)
	DeactivateTier(ctx context.Context, id string) (*TierRule, error)
	ListTiers(ctx context.Context, relationshipTypeID string) ([]TierRule, error)
}

type Repository interface {
	InsertFlat(ctx context.Context, db *gorm.DB, rule *FlatRule) error
	FindFlatByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*FlatRule, error)
	ListFlat(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]FlatRule, error)
	InsertTier(ctx context.Context, db *gorm.DB, rule *TierRule) error
	FindTierByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*TierRule, error)
	ListTiers(ctx context.Context, db *gorm.DB, orgID snowflake.ID, relationshipTypeID snowflake.ID) ([]TierRule, error)
	UpdateTier(ctx context.Context, db *gorm.DB, rule *TierRule) error
	// SnapshotAt loads every rule that could apply on asOf. The
	// snapshot is a value copy; resolution never goes back to the DB.
	SnapshotAt(ctx context.Context, db *gorm.DB, orgID snowflake.ID, asOf time.Time) (*Snapshot, error)
}

// Snapshot is the immutable rule set handed to the pricing resolver.
type Snapshot struct {
	TakenAt time.Time
	Flat    []FlatRule
	Tiers   []TierRule
}
