// Package domain defines the affiliate sub-accounts (padrones) and
// the append-only movement stream that carries their balances.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mutualabs/mutua/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Direction of a movement relative to the account balance.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Origin classifies what produced a movement.
type Origin string

const (
	OriginCreditOrder Origin = "credit_order"
	OriginInstallment Origin = "installment"
	OriginCashPayment Origin = "cash_payment"
	OriginPayroll     Origin = "payroll"
	OriginCoseguro    Origin = "coseguro"
	OriginDependents  Origin = "dependents"
	OriginAdjustment  Origin = "adjustment"
	OriginReversal    Origin = "reversal"
)

// Account is the sub-ledger (padrón) absorbing one charge stream for
// an affiliate. CurrentBalance is derived by the poster and never
// edited directly.
type Account struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID               snowflake.ID `gorm:"not null;index" json:"org_id"`
	AffiliateID         snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	Code                string       `gorm:"type:text;not null" json:"code"`
	Description         string       `gorm:"type:text" json:"description"`
	OpeningBalanceCents int64        `gorm:"not null;default:0" json:"opening_balance_cents"`
	CurrentBalanceCents int64        `gorm:"not null;default:0" json:"current_balance_cents"`
	QuotaCents          int64        `gorm:"not null;default:0" json:"quota_cents"`
	Active              bool         `gorm:"not null;default:true" json:"active"`
	IdempotencyKey      *string      `gorm:"type:text;uniqueIndex" json:"-"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// Movement is one immutable ledger line. Reversal posts an offsetting
// line; nothing is ever updated or deleted.
type Movement struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID      `gorm:"not null;index" json:"org_id"`
	AccountID         snowflake.ID      `gorm:"not null;index:ix_movements_account_date" json:"account_id"`
	Date              time.Time         `gorm:"not null;index:ix_movements_account_date" json:"date"`
	Direction         Direction         `gorm:"type:text;not null" json:"direction"`
	Origin            Origin            `gorm:"type:text;not null" json:"origin"`
	AmountCents       int64             `gorm:"not null" json:"amount_cents"`
	BalanceAfterCents int64             `gorm:"not null" json:"balance_after_cents"`
	RefType           string            `gorm:"type:text" json:"ref_type,omitempty"`
	RefID             *snowflake.ID     `gorm:"index" json:"ref_id,omitempty"`
	ReversalOfID      *snowflake.ID     `gorm:"index" json:"reversal_of_id,omitempty"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Movement) TableName() string { return "movements" }

// Signed returns the balance delta the movement applies.
func (m Movement) Signed() int64 {
	if m.Direction == DirectionCredit {
		return m.AmountCents
	}
	return -m.AmountCents
}

// Opposite returns the offsetting direction, used by reversals.
func (d Direction) Opposite() Direction {
	if d == DirectionCredit {
		return DirectionDebit
	}
	return DirectionCredit
}

var (
	ErrInvalidOrganization = errors.New("ledger_invalid_organization")
	ErrInvalidAffiliate    = errors.New("ledger_invalid_affiliate")
	ErrInvalidAccount      = errors.New("ledger_invalid_account")
	ErrInvalidAmount       = errors.New("ledger_invalid_amount")
	ErrInvalidDirection    = errors.New("ledger_invalid_direction")
	ErrInvalidID           = errors.New("ledger_invalid_id")
	ErrAccountNotFound     = errors.New("ledger_account_not_found")
	ErrAccountInactive     = errors.New("ledger_account_inactive")
	ErrMovementNotFound    = errors.New("ledger_movement_not_found")
)

type CreateAccountRequest struct {
	AffiliateID         string `json:"affiliate_id"`
	Code                string `json:"code"`
	Description         string `json:"description"`
	OpeningBalanceCents int64  `json:"opening_balance_cents"`
	QuotaCents          int64  `json:"quota_cents"`
	IdempotencyKey      string `json:"-"`
}

// PostRequest is the internal posting contract used by the
// attribution, publication and scheduler flows.
type PostRequest struct {
	AccountID   snowflake.ID
	Direction   Direction
	Origin      Origin
	AmountCents int64
	Date        time.Time
	RefType     string
	RefID       *snowflake.ID
	Metadata    map[string]any
}

type AdjustmentRequest struct {
	AccountID   string    `json:"account_id"`
	Direction   Direction `json:"direction"`
	AmountCents int64     `json:"amount_cents"`
	Date        time.Time `json:"date"`
	Reason      string    `json:"reason"`
}

type Service interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error)
	GetAccount(ctx context.Context, id string) (*Account, error)
	DeactivateAccount(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context, affiliateID string) ([]Account, error)

	Post(ctx context.Context, req PostRequest) (*Movement, error)
	Reverse(ctx context.Context, movementID string, reason string) (*Movement, error)
	ManualAdjustment(ctx context.Context, req AdjustmentRequest) (*Movement, error)
	Movements(ctx context.Context, accountID string, page pagination.Pagination) ([]Movement, *pagination.PageInfo, error)
}

// TxPoster is the posting contract for flows that already hold a
// transaction (attribution reassignment, publication batches). The
// caller must hold the account locks for every account it posts to.
type TxPoster interface {
	LockAccounts(ids ...snowflake.ID) (unlock func())
	PostInTx(ctx context.Context, tx *gorm.DB, req PostRequest) (*Movement, error)
	ReverseInTx(ctx context.Context, tx *gorm.DB, movementID snowflake.ID, reason string) (*Movement, error)
	// AfterCommit runs the posted movements' side effects (cache
	// invalidation, metrics); callers invoke it once their
	// transaction has committed, never inside it.
	AfterCommit(ctx context.Context, movements ...*Movement)
}

type Repository interface {
	InsertAccount(ctx context.Context, db *gorm.DB, account *Account) error
	FindAccountByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Account, error)
	FindAccountByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*Account, error)
	// FindAccountForUpdate locks the account row for the duration of
	// the surrounding transaction (FOR UPDATE on drivers that have it).
	FindAccountForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Account, error)
	ListAccountsByAffiliate(ctx context.Context, db *gorm.DB, orgID, affiliateID snowflake.ID) ([]Account, error)
	UpdateAccountBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, balanceCents int64, at time.Time) error
	SaveAccount(ctx context.Context, db *gorm.DB, account *Account) error

	InsertMovement(ctx context.Context, db *gorm.DB, m *Movement) error
	FindMovementByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Movement, error)
	ListMovements(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, from, to time.Time) ([]Movement, error)
	// ListMovementsPage over-fetches one row past the page size so the
	// service can detect a following page.
	ListMovementsPage(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, page pagination.Pagination) ([]Movement, error)
	LastMovementBefore(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, before time.Time) (*Movement, error)
}
