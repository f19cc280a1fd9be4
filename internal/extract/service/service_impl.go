package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	extractdomain "github.com/mutualabs/mutua/internal/extract/domain"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	ledgerservice "github.com/mutualabs/mutua/internal/ledger/service"
	"github.com/mutualabs/mutua/internal/orgcontext"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const balanceCacheTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  ledgerdomain.Repository
	Redis *redis.Client `optional:"true"`
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo ledgerdomain.Repository
	rdb  *redis.Client
}

func New(p Params) extractdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("extract.service"),
		repo: p.Repo,
		rdb:  p.Redis,
	}
}

func (s *Service) ProjectPeriod(ctx context.Context, accountID string, from, to time.Time) (*extractdomain.PeriodProjection, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	id, err := parseID(accountID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidID
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, extractdomain.ErrInvalidPeriod
	}

	account, err := s.repo.FindAccountByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}

	// Opening balance is the balanceAfter of the last movement
	// strictly before the period, so no replay is needed.
	opening := account.OpeningBalanceCents
	if last, err := s.repo.LastMovementBefore(ctx, s.db, orgID, id, from); err != nil {
		return nil, err
	} else if last != nil {
		opening = last.BalanceAfterCents
	}

	movements, err := s.repo.ListMovements(ctx, s.db, orgID, id, from, to)
	if err != nil {
		return nil, err
	}

	var debits, credits int64
	closing := opening
	for _, m := range movements {
		switch m.Direction {
		case ledgerdomain.DirectionDebit:
			debits += m.AmountCents
		case ledgerdomain.DirectionCredit:
			credits += m.AmountCents
		}
		closing += m.Signed()
	}

	return &extractdomain.PeriodProjection{
		AccountID:           id.String(),
		From:                from,
		To:                  to,
		OpeningBalanceCents: opening,
		ClosingBalanceCents: closing,
		TotalDebitsCents:    debits,
		TotalCreditsCents:   credits,
		Movements:           movements,
	}, nil
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, ledgerdomain.ErrInvalidOrganization
	}
	id, err := parseID(accountID)
	if err != nil {
		return 0, ledgerdomain.ErrInvalidID
	}

	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, ledgerservice.BalanceCacheKey(orgID, id)).Result()
		if err == nil {
			if balance, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
				return balance, nil
			}
		}
	}

	account, err := s.repo.FindAccountByID(ctx, s.db, orgID, id)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, ledgerdomain.ErrAccountNotFound
	}

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, ledgerservice.BalanceCacheKey(orgID, id),
			strconv.FormatInt(account.CurrentBalanceCents, 10), balanceCacheTTL).Err(); err != nil {
			s.log.Warn("balance cache write failed", zap.Error(err))
		}
	}

	return account.CurrentBalanceCents, nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
