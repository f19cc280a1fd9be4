package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mutualabs/mutua/internal/clock"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	"github.com/mutualabs/mutua/internal/observability"
	"github.com/mutualabs/mutua/internal/orgcontext"
	"github.com/mutualabs/mutua/pkg/db/pagination"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    ledgerdomain.Repository
	Metrics *observability.Metrics `optional:"true"`
	Redis   *redis.Client          `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    ledgerdomain.Repository
	metrics *observability.Metrics
	rdb     *redis.Client
	locks   *accountLocks
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
		rdb:     p.Redis,
		locks:   newAccountLocks(),
	}
}

func (s *Service) CreateAccount(ctx context.Context, req ledgerdomain.CreateAccountRequest) (*ledgerdomain.Account, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}

	affiliateID, err := parseID(req.AffiliateID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidAffiliate
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, ledgerdomain.ErrInvalidAccount
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.repo.FindAccountByIdempotencyKey(ctx, s.db, orgID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := s.clock.Now(ctx)
	account := &ledgerdomain.Account{
		ID:                  s.genID.Generate(),
		OrgID:               orgID,
		AffiliateID:         affiliateID,
		Code:                code,
		Description:         strings.TrimSpace(req.Description),
		OpeningBalanceCents: req.OpeningBalanceCents,
		CurrentBalanceCents: req.OpeningBalanceCents,
		QuotaCents:          req.QuotaCents,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if idempotencyKey != "" {
		account.IdempotencyKey = &idempotencyKey
	}

	if err := s.repo.InsertAccount(ctx, s.db, account); err != nil {
		if idempotencyKey != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.repo.FindAccountByIdempotencyKey(ctx, s.db, orgID, idempotencyKey)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, id string) (*ledgerdomain.Account, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	accountID, err := parseID(id)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidID
	}
	account, err := s.repo.FindAccountByID(ctx, s.db, orgID, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) DeactivateAccount(ctx context.Context, id string) (*ledgerdomain.Account, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return account, nil
	}

	account.Active = false
	account.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.SaveAccount(ctx, s.db, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context, affiliateID string) ([]ledgerdomain.Account, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	affID, err := parseID(affiliateID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidAffiliate
	}
	return s.repo.ListAccountsByAffiliate(ctx, s.db, orgID, affID)
}

// Movements lists an account's movements newest first with cursor
// paging.
func (s *Service) Movements(ctx context.Context, accountID string, page pagination.Pagination) ([]ledgerdomain.Movement, *pagination.PageInfo, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	if page.PageSize <= 0 || page.PageSize > 200 {
		page.PageSize = 50
	}
	items, err := s.repo.ListMovementsPage(ctx, s.db, account.OrgID, account.ID, page)
	if err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(page.PageSize), func(m ledgerdomain.Movement) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        m.ID.String(),
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(items) > page.PageSize {
		items = items[:page.PageSize]
	}
	return items, pageInfo, nil
}

// Post appends one movement under the account's serialization scope.
func (s *Service) Post(ctx context.Context, req ledgerdomain.PostRequest) (*ledgerdomain.Movement, error) {
	unlock := s.LockAccounts(req.AccountID)
	defer unlock()

	var movement *ledgerdomain.Movement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.PostInTx(ctx, tx, req)
		if err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.AfterCommit(ctx, movement)
	return movement, nil
}

// PostInTx appends one movement using the caller's transaction. The
// caller must hold the account lock and call AfterCommit once its
// transaction has committed.
func (s *Service) PostInTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostRequest) (*ledgerdomain.Movement, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if req.AmountCents <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if req.Direction != ledgerdomain.DirectionDebit && req.Direction != ledgerdomain.DirectionCredit {
		return nil, ledgerdomain.ErrInvalidDirection
	}

	account, err := s.repo.FindAccountForUpdate(ctx, tx, orgID, req.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}
	if !account.Active {
		return nil, ledgerdomain.ErrAccountInactive
	}

	now := s.clock.Now(ctx)
	date := req.Date
	if date.IsZero() {
		date = now
	}

	movement := &ledgerdomain.Movement{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		AccountID:    account.ID,
		Date:         date.UTC(),
		Direction:    req.Direction,
		Origin:       req.Origin,
		AmountCents:  req.AmountCents,
		RefType:      req.RefType,
		RefID:        req.RefID,
		ReversalOfID: nil,
		CreatedAt:    now,
	}
	if req.Metadata != nil {
		movement.Metadata = datatypes.JSONMap(req.Metadata)
	}
	movement.BalanceAfterCents = account.CurrentBalanceCents + movement.Signed()

	if err := s.repo.InsertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAccountBalance(ctx, tx, account.ID, movement.BalanceAfterCents, now); err != nil {
		return nil, err
	}
	return movement, nil
}

// Reverse posts the offsetting movement for an existing one. The
// original is never touched.
func (s *Service) Reverse(ctx context.Context, movementID string, reason string) (*ledgerdomain.Movement, error) {
	id, err := parseID(movementID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidID
	}

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	original, err := s.repo.FindMovementByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, ledgerdomain.ErrMovementNotFound
	}

	unlock := s.LockAccounts(original.AccountID)
	defer unlock()

	var movement *ledgerdomain.Movement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.ReverseInTx(ctx, tx, id, reason)
		if err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.AfterCommit(ctx, movement)
	return movement, nil
}

// ReverseInTx is Reverse for callers that already hold a transaction
// and the account lock; they call AfterCommit after committing.
func (s *Service) ReverseInTx(ctx context.Context, tx *gorm.DB, movementID snowflake.ID, reason string) (*ledgerdomain.Movement, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}

	original, err := s.repo.FindMovementByID(ctx, tx, orgID, movementID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, ledgerdomain.ErrMovementNotFound
	}

	account, err := s.repo.FindAccountForUpdate(ctx, tx, orgID, original.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}

	now := s.clock.Now(ctx)
	reversalOf := original.ID
	movement := &ledgerdomain.Movement{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		AccountID:    account.ID,
		Date:         now,
		Direction:    original.Direction.Opposite(),
		Origin:       ledgerdomain.OriginReversal,
		AmountCents:  original.AmountCents,
		RefType:      original.RefType,
		RefID:        original.RefID,
		ReversalOfID: &reversalOf,
		CreatedAt:    now,
	}
	if reason != "" {
		movement.Metadata = datatypes.JSONMap{"reason": reason}
	}
	movement.BalanceAfterCents = account.CurrentBalanceCents + movement.Signed()

	if err := s.repo.InsertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAccountBalance(ctx, tx, account.ID, movement.BalanceAfterCents, now); err != nil {
		return nil, err
	}
	return movement, nil
}

// ManualAdjustment is the restricted correction path exposed over HTTP.
func (s *Service) ManualAdjustment(ctx context.Context, req ledgerdomain.AdjustmentRequest) (*ledgerdomain.Movement, error) {
	accountID, err := parseID(req.AccountID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	if req.AmountCents <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	reason := strings.TrimSpace(req.Reason)

	return s.Post(ctx, ledgerdomain.PostRequest{
		AccountID:   accountID,
		Direction:   req.Direction,
		Origin:      ledgerdomain.OriginAdjustment,
		AmountCents: req.AmountCents,
		Date:        req.Date,
		RefType:     "manual_adjustment",
		Metadata:    map[string]any{"reason": reason},
	})
}

// LockAccounts takes the in-process serialization locks for the given
// accounts, in ID order.
func (s *Service) LockAccounts(ids ...snowflake.ID) func() {
	return s.locks.acquire(ids...)
}

// AfterCommit runs the side effects of posted movements once they are
/// durable: the movements counter and the balance cache invalidation.
// Running these inside a still-open transaction would let a concurrent
// balance read re-cache the pre-commit value, or count a rolled-back
// post.
func (s *Service) AfterCommit(ctx context.Context, movements ...*ledgerdomain.Movement) {
	for _, m := range movements {
		if m == nil {
			continue
		}
		if s.metrics != nil {
			s.metrics.MovementsPosted.WithLabelValues(string(m.Origin), string(m.Direction)).Inc()
		}
		if s.rdb != nil {
			if err := s.rdb.Del(ctx, BalanceCacheKey(m.OrgID, m.AccountID)).Err(); err != nil {
				s.log.Warn("balance cache invalidation failed",
					zap.String("account_id", m.AccountID.String()), zap.Error(err))
			}
		}
	}
}

// BalanceCacheKey is the redis key holding an account's current balance.
func BalanceCacheKey(orgID, accountID snowflake.ID) string {
	return fmt.Sprintf("mutua:balance:%s:%s", orgID, accountID)
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
