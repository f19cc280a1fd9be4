// Package domain defines an affiliate's dependent roster
// (colaterales). Only active, tier-counted dependents contribute to
// the count the pricing resolver sees.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Dependent struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID              snowflake.ID `gorm:"not null;index" json:"org_id"`
	AffiliateID        snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	Name               string       `gorm:"type:text;not null" json:"name"`
	BirthDate          *time.Time   `gorm:"" json:"birth_date,omitempty"`
	RelationshipTypeID snowflake.ID `gorm:"not null;index" json:"relationship_type_id"`
	Active             bool         `gorm:"not null;default:true" json:"active"`
	CountsTowardTier   bool         `gorm:"not null;default:true" json:"counts_toward_tier"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Dependent) TableName() string { return "dependents" }

var (
	ErrInvalidOrganization = errors.New("roster_invalid_organization")
	ErrInvalidAffiliate    = errors.New("roster_invalid_affiliate")
	ErrInvalidName         = errors.New("roster_invalid_name")
	ErrInvalidRelationship = errors.New("roster_invalid_relationship")
	ErrInvalidID           = errors.New("roster_invalid_id")
	ErrNotFound            = errors.New("roster_dependent_not_found")
)

type CreateRequest struct {
	AffiliateID        string     `json:"affiliate_id"`
	Name               string     `json:"name"`
	BirthDate          *time.Time `json:"birth_date,omitempty"`
	RelationshipTypeID string     `json:"relationship_type_id"`
	CountsTowardTier   *bool      `json:"counts_toward_tier,omitempty"`
}

type UpdateRequest struct {
	Name             *string    `json:"name,omitempty"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	CountsTowardTier *bool      `json:"counts_toward_tier,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Dependent, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Dependent, error)
	Deactivate(ctx context.Context, id string) (*Dependent, error)
	List(ctx context.Context, affiliateID string) ([]Dependent, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, d *Dependent) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Dependent, error)
	ListByAffiliate(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) ([]Dependent, error)
	Update(ctx context.Context, db *gorm.DB, d *Dependent) error
	// CountCountable counts active tier-counted dependents.
	CountCountable(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) (int, error)
	// CountCountableByRelationship splits the countable dependents by
	// relationship type, the shape the resolver fan-out consumes.
	CountCountableByRelationship(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) (map[snowflake.ID]int, error)
}
