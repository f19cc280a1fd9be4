// Package domain holds the per-affiliate enrollment record linking
// co-insurance status to the sub-accounts that absorb its charges.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CoseguroState string

const (
	CoseguroStateNone      CoseguroState = "none"
	CoseguroStateActive    CoseguroState = "active"
	CoseguroStateWithdrawn CoseguroState = "withdrawn"
)

var (
	ErrInvalidOrganization  = errors.New("attribution_invalid_organization")
	ErrInvalidAffiliate     = errors.New("attribution_invalid_affiliate")
	ErrInvalidAccount       = errors.New("attribution_invalid_account")
	ErrNotFound             = errors.New("attribution_not_found")
	ErrNotActive            = errors.New("attribution_not_active")
	ErrReassignmentRequired = errors.New("attribution_reassignment_required")
	ErrNoCountableDependent = errors.New("attribution_no_countable_dependent")
)

// Attribution is one affiliate's enrollment record. CoseguroMovementID
// remembers the initial charge so a reassignment can reverse it.
// LastDependentsChargeCents is the last dependents amount posted for
// the affiliate; publication diffs recomputed charges against it.
type Attribution struct {
	ID                        snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID                     snowflake.ID  `gorm:"index;not null;uniqueIndex:ux_attributions_affiliate" json:"org_id"`
	AffiliateID               snowflake.ID  `gorm:"not null;uniqueIndex:ux_attributions_affiliate" json:"affiliate_id"`
	CoseguroState             CoseguroState `gorm:"type:text;not null" json:"coseguro_state"`
	CoseguroAccountID         *snowflake.ID `gorm:"index" json:"coseguro_account_id,omitempty"`
	CoseguroMovementID        *snowflake.ID `json:"coseguro_movement_id,omitempty"`
	DependentsAccountID       *snowflake.ID `gorm:"index" json:"dependents_account_id,omitempty"`
	LastDependentsChargeCents int64         `gorm:"not null;default:0" json:"last_dependents_charge_cents"`
	CreatedAt                 time.Time     `json:"created_at"`
	UpdatedAt                 time.Time     `json:"updated_at"`
}

func (Attribution) TableName() string { return "attributions" }

// ActivateRequest enables co-insurance and, when DependentsAccountID
// is set, dependents pricing. Reassign opts into moving an already
// active co-insurance charge onto a different account.
type ActivateRequest struct {
	CoseguroAccountID   string `json:"coseguro_account_id" binding:"required"`
	DependentsAccountID string `json:"dependents_account_id,omitempty"`
	Reassign            bool   `json:"reassign,omitempty"`
}

type Service interface {
	Get(ctx context.Context, affiliateID string) (*Attribution, error)
	Activate(ctx context.Context, affiliateID string, req ActivateRequest) (*Attribution, error)
	Withdraw(ctx context.Context, affiliateID string) (*Attribution, error)
	// Reassign is Activate with the reassignment opt-in forced on.
	Reassign(ctx context.Context, affiliateID string, req ActivateRequest) (*Attribution, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, a *Attribution) error
	FindByAffiliate(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) (*Attribution, error)
	Update(ctx context.Context, db *gorm.DB, a *Attribution) error
	// ListWithDependentsAccount returns every record with a dependents
	// sub-account attributed, the publish fan-out population.
	ListWithDependentsAccount(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Attribution, error)
}
