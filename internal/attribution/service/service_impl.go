package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	attributiondomain "github.com/mutualabs/mutua/internal/attribution/domain"
	auditdomain "github.com/mutualabs/mutua/internal/audit/domain"
	"github.com/mutualabs/mutua/internal/clock"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	"github.com/mutualabs/mutua/internal/orgcontext"
	"github.com/mutualabs/mutua/internal/pricing"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
	schedulerdomain "github.com/mutualabs/mutua/internal/scheduler/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     attributiondomain.Repository
	Accounts ledgerdomain.Repository
	Poster   ledgerdomain.TxPoster
	Pricing  *pricing.Service
	Roster   rosterdomain.Repository
	Jobs     schedulerdomain.Enqueuer
	Audit    auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     attributiondomain.Repository
	accounts ledgerdomain.Repository
	poster   ledgerdomain.TxPoster
	pricing  *pricing.Service
	roster   rosterdomain.Repository
	jobs     schedulerdomain.Enqueuer
	audit    auditdomain.Service
}

func New(p Params) attributiondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("attribution.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		accounts: p.Accounts,
		poster:   p.Poster,
		pricing:  p.Pricing,
		roster:   p.Roster,
		jobs:     p.Jobs,
		audit:    p.Audit,
	}
}

func (s *Service) Get(ctx context.Context, affiliateID string) (*attributiondomain.Attribution, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, attributiondomain.ErrInvalidOrganization
	}
	affID, err := parseID(affiliateID)
	if err != nil {
		return nil, attributiondomain.ErrInvalidAffiliate
	}
	attr, err := s.repo.FindByAffiliate(ctx, s.db, orgID, affID)
	if err != nil {
		return nil, err
	}
	if attr == nil {
		return nil, attributiondomain.ErrNotFound
	}
	return attr, nil
}

// Activate moves the affiliate to coseguro_state=active, posts the
// initial co-insurance charge, and, when a dependents account is
// attributed, enqueues a single-affiliate recompute. An affiliate
// already active on a different account is rejected with
// ErrReassignmentRequired unless req.Reassign is set, in which case
// the old account's charge is reversed and the new one posted in the
// same transaction.
func (s *Service) Activate(ctx context.Context, affiliateID string, req attributiondomain.ActivateRequest) (*attributiondomain.Attribution, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, attributiondomain.ErrInvalidOrganization
	}
	affID, err := parseID(affiliateID)
	if err != nil {
		return nil, attributiondomain.ErrInvalidAffiliate
	}

	coseguroAccount, err := s.chargeableAccount(ctx, orgID, affID, req.CoseguroAccountID)
	if err != nil {
		return nil, err
	}

	var dependentsAccount *ledgerdomain.Account
	if strings.TrimSpace(req.DependentsAccountID) != "" {
		dependentsAccount, err = s.chargeableAccount(ctx, orgID, affID, req.DependentsAccountID)
		if err != nil {
			return nil, err
		}
		count, err := s.roster.CountCountable(ctx, s.db, orgID, affID)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, attributiondomain.ErrNoCountableDependent
		}
	}

	attr, err := s.repo.FindByAffiliate(ctx, s.db, orgID, affID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now(ctx)
	isNew := attr == nil
	if isNew {
		attr = &attributiondomain.Attribution{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			AffiliateID:   affID,
			CoseguroState: attributiondomain.CoseguroStateNone,
			CreatedAt:     now,
		}
	}

	sameAccount := attr.CoseguroState == attributiondomain.CoseguroStateActive &&
		attr.CoseguroAccountID != nil && *attr.CoseguroAccountID == coseguroAccount.ID
	reassigning := attr.CoseguroState == attributiondomain.CoseguroStateActive && !sameAccount
	if reassigning && !req.Reassign {
		return nil, attributiondomain.ErrReassignmentRequired
	}

	lockIDs := []snowflake.ID{coseguroAccount.ID}
	if reassigning && attr.CoseguroAccountID != nil {
		lockIDs = append(lockIDs, *attr.CoseguroAccountID)
	}
	unlock := s.poster.LockAccounts(lockIDs...)
	defer unlock()

	var posted []*ledgerdomain.Movement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posted = posted[:0]
		if reassigning && attr.CoseguroMovementID != nil {
			reversal, err := s.poster.ReverseInTx(ctx, tx, *attr.CoseguroMovementID, "coseguro reassignment")
			if err != nil {
				return err
			}
			posted = append(posted, reversal)
			attr.CoseguroMovementID = nil
		}

		if !sameAccount {
			movement, err := s.postInitialCharge(ctx, tx, coseguroAccount.ID, now)
			if err != nil {
				return err
			}
			if movement != nil {
				posted = append(posted, movement)
				id := movement.ID
				attr.CoseguroMovementID = &id
			}
		}

		coseguroID := coseguroAccount.ID
		attr.CoseguroState = attributiondomain.CoseguroStateActive
		attr.CoseguroAccountID = &coseguroID
		if dependentsAccount != nil {
			depID := dependentsAccount.ID
			attr.DependentsAccountID = &depID
		}
		attr.UpdatedAt = now

		if isNew {
			if err := s.repo.Insert(ctx, tx, attr); err != nil {
				return err
			}
		} else if err := s.repo.Update(ctx, tx, attr); err != nil {
			return err
		}

		if dependentsAccount != nil {
			if _, err := s.jobs.Enqueue(ctx, tx, affID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.poster.AfterCommit(ctx, posted...)

	s.auditTransition(ctx, attr, "attribution.activate", map[string]any{
		"coseguro_account_id": coseguroAccount.ID.String(),
		"reassigned":          reassigning,
	})
	return attr, nil
}

// Withdraw clears the co-insurance attribution. The dependents account
// reference is kept; dependents charging is decoupled from co-insurance
// withdrawal.
func (s *Service) Withdraw(ctx context.Context, affiliateID string) (*attributiondomain.Attribution, error) {
	attr, err := s.Get(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if attr.CoseguroState != attributiondomain.CoseguroStateActive {
		return nil, attributiondomain.ErrNotActive
	}

	attr.CoseguroState = attributiondomain.CoseguroStateWithdrawn
	attr.CoseguroAccountID = nil
	attr.CoseguroMovementID = nil
	attr.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.Update(ctx, s.db, attr); err != nil {
		return nil, err
	}

	s.auditTransition(ctx, attr, "attribution.withdraw", nil)
	return attr, nil
}

func (s *Service) Reassign(ctx context.Context, affiliateID string, req attributiondomain.ActivateRequest) (*attributiondomain.Attribution, error) {
	req.Reassign = true
	return s.Activate(ctx, affiliateID, req)
}

// chargeableAccount resolves and validates a posting target: it must
// exist, belong to the affiliate, and be active.
func (s *Service) chargeableAccount(ctx context.Context, orgID, affID snowflake.ID, accountID string) (*ledgerdomain.Account, error) {
	id, err := parseID(accountID)
	if err != nil {
		return nil, attributiondomain.ErrInvalidAccount
	}
	account, err := s.accounts.FindAccountByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if account == nil || account.AffiliateID != affID || !account.Active {
		return nil, attributiondomain.ErrInvalidAccount
	}
	return account, nil
}

// postInitialCharge posts the flat co-insurance price effective at
// activation. When no flat rule covers the date nothing is posted and
// the attribution carries no movement reference.
func (s *Service) postInitialCharge(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, now time.Time) (*ledgerdomain.Movement, error) {
	res, found, err := s.pricing.FlatPriceAt(ctx, now)
	if err != nil {
		return nil, err
	}
	if !found {
		s.log.Info("no flat rule covers activation date, skipping initial charge",
			zap.Time("as_of", now))
		return nil, nil
	}

	ruleID := res.RuleID
	return s.poster.PostInTx(ctx, tx, ledgerdomain.PostRequest{
		AccountID:   accountID,
		Direction:   ledgerdomain.DirectionDebit,
		Origin:      ledgerdomain.OriginCoseguro,
		AmountCents: res.PriceCents,
		Date:        now,
		RefType:     "pricing_rule",
		RefID:       &ruleID,
	})
}

func (s *Service) auditTransition(ctx context.Context, attr *attributiondomain.Attribution, action string, details map[string]any) {
	if s.audit == nil {
		return
	}
	target := attr.AffiliateID.String()
	if err := s.audit.AuditLog(ctx, action, "attribution", &target, details); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
