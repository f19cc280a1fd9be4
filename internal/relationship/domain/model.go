// Package domain defines relationship types (parentescos) used to
// classify an affiliate's dependents.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RelationshipType struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index;uniqueIndex:ux_relationship_types_code,priority:1" json:"org_id"`
	Code        int          `gorm:"not null;uniqueIndex:ux_relationship_types_code,priority:2" json:"code"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Active      bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RelationshipType) TableName() string { return "relationship_types" }

var (
	ErrInvalidOrganization = errors.New("relationship_invalid_organization")
	ErrInvalidCode         = errors.New("relationship_invalid_code")
	ErrInvalidDescription  = errors.New("relationship_invalid_description")
	ErrDuplicateCode       = errors.New("relationship_duplicate_code")
	ErrNotFound            = errors.New("relationship_not_found")
	ErrInvalidID           = errors.New("relationship_invalid_id")
)

type CreateRequest struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*RelationshipType, error)
	List(ctx context.Context, includeInactive bool) ([]RelationshipType, error)
	Get(ctx context.Context, id string) (*RelationshipType, error)
	Deactivate(ctx context.Context, id string) (*RelationshipType, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rt *RelationshipType) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*RelationshipType, error)
	FindByCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code int) (*RelationshipType, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, includeInactive bool) ([]RelationshipType, error)
	Update(ctx context.Context, db *gorm.DB, rt *RelationshipType) error
}
