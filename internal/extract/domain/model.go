// Package domain defines the read-side period projection served to
// account statements.
package domain

import (
	"context"
	"errors"
	"time"

	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
)

type PeriodProjection struct {
	AccountID           string                  `json:"account_id"`
	From                time.Time               `json:"from"`
	To                  time.Time               `json:"to"`
	OpeningBalanceCents int64                   `json:"opening_balance_cents"`
	ClosingBalanceCents int64                   `json:"closing_balance_cents"`
	TotalDebitsCents    int64                   `json:"total_debits_cents"`
	TotalCreditsCents   int64                   `json:"total_credits_cents"`
	Movements           []ledgerdomain.Movement `json:"movements"`
}

var ErrInvalidPeriod = errors.New("extract_invalid_period")

type Service interface {
	ProjectPeriod(ctx context.Context, accountID string, from, to time.Time) (*PeriodProjection, error)
	GetBalance(ctx context.Context, accountID string) (int64, error)
}
