package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	attributiondomain "github.com/mutualabs/mutua/internal/attribution/domain"
	auditdomain "github.com/mutualabs/mutua/internal/audit/domain"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/config"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	"github.com/mutualabs/mutua/internal/observability"
	"github.com/mutualabs/mutua/internal/orgcontext"
	"github.com/mutualabs/mutua/internal/pricing"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	publicationdomain "github.com/mutualabs/mutua/internal/publication/domain"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
	schedulerdomain "github.com/mutualabs/mutua/internal/scheduler/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Cfg          *config.Config
	Repo         publicationdomain.Repository
	Attributions attributiondomain.Repository
	Accounts     ledgerdomain.Repository
	Roster       rosterdomain.Repository
	Pricing      *pricing.Service
	Poster       ledgerdomain.TxPoster
	Audit        auditdomain.Service    `optional:"true"`
	Metrics      *observability.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	cfg          *config.Config
	repo         publicationdomain.Repository
	attributions attributiondomain.Repository
	accounts     ledgerdomain.Repository
	roster       rosterdomain.Repository
	pricing      *pricing.Service
	poster       ledgerdomain.TxPoster
	audit        auditdomain.Service
	metrics      *observability.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("publication.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Cfg,
		repo:         p.Repo,
		attributions: p.Attributions,
		accounts:     p.Accounts,
		roster:       p.Roster,
		pricing:      p.Pricing,
		poster:       p.Poster,
		audit:        p.Audit,
		metrics:      p.Metrics,
	}
}

// OpenDraft returns the organization's draft publication, creating one
// when none exists. Opening while a draft exists is idempotent.
func (s *Service) OpenDraft(ctx context.Context, comment string) (*publicationdomain.Publication, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, publicationdomain.ErrInvalidOrganization
	}

	existing, err := s.repo.FindDraft(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now(ctx)
	draft := &publicationdomain.Publication{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Status:    publicationdomain.StatusDraft,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, draft); err != nil {
		// A concurrent open won the partial unique index; return its
		// draft instead.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, findErr := s.repo.FindDraft(ctx, s.db, orgID); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.auditLog(ctx, "publication.open_draft", draft.ID, nil)
	return draft, nil
}

// Publish freezes the rules as of now and recomputes every affiliate
// with an attributed dependents account. Failures for individual
// affiliates are collected in the result, not fatal; the publication
// transitions to published once the whole batch has been attempted.
func (s *Service) Publish(ctx context.Context, id string) (*publicationdomain.PublishResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, publicationdomain.ErrInvalidOrganization
	}
	pub, err := s.getDraft(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	now := s.clock.Now(ctx)
	snap, err := s.pricing.SnapshotAt(ctx, now)
	if err != nil {
		return nil, err
	}
	attrs, err := s.attributions.ListWithDependentsAccount(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	workers := s.cfg.Publish.Workers
	if workers <= 0 {
		workers = 4
	}
	// sqlite allows a single writer; concurrent posting transactions
	// deadlock instead of queueing.
	if s.db.Dialector.Name() == "sqlite" {
		workers = 1
	}

	result := &publicationdomain.PublishResult{PublicationID: pub.ID}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	pubID := pub.ID
	for i := range attrs {
		attr := attrs[i]
		g.Go(func() error {
			outcome, err := s.recomputeAttribution(gctx, snap, &attr, now, &pubID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed = append(result.Failed, publicationdomain.AffiliateOutcome{
					AffiliateID: attr.AffiliateID,
					Reason:      err.Error(),
				})
				s.countOutcome("failed")
			case outcome.SkipReason != "":
				result.Skipped = append(result.Skipped, publicationdomain.AffiliateOutcome{
					AffiliateID: attr.AffiliateID,
					Reason:      outcome.SkipReason,
				})
				s.countOutcome("skipped")
			case outcome.Posted:
				result.Adjusted++
				s.countOutcome("adjusted")
			default:
				result.Unchanged++
				s.countOutcome("unchanged")
			}
			return nil
		})
	}
	_ = g.Wait()

	won, err := s.repo.TransitionFromDraft(ctx, s.db, orgID, pub.ID, publicationdomain.StatusPublished, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, publicationdomain.ErrNotDraft
	}

	if s.metrics != nil {
		s.metrics.PublishDuration.Observe(time.Since(started).Seconds())
	}
	s.auditLog(ctx, "publication.publish", pub.ID, map[string]any{
		"adjusted":  result.Adjusted,
		"unchanged": result.Unchanged,
		"skipped":   len(result.Skipped),
		"failed":    len(result.Failed),
	})
	s.log.Info("publication published",
		zap.String("publication_id", pub.ID.String()),
		zap.Int("adjusted", result.Adjusted),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*publicationdomain.Publication, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, publicationdomain.ErrInvalidOrganization
	}
	pub, err := s.getDraft(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	won, err := s.repo.TransitionFromDraft(ctx, s.db, orgID, pub.ID, publicationdomain.StatusCancelled, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, publicationdomain.ErrNotDraft
	}

	s.auditLog(ctx, "publication.cancel", pub.ID, nil)
	return s.repo.FindByID(ctx, s.db, orgID, pub.ID)
}

func (s *Service) Get(ctx context.Context, id string) (*publicationdomain.Publication, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, publicationdomain.ErrInvalidOrganization
	}
	pubID, err := parseID(id)
	if err != nil {
		return nil, publicationdomain.ErrInvalidID
	}
	pub, err := s.repo.FindByID(ctx, s.db, orgID, pubID)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, publicationdomain.ErrNotFound
	}
	return pub, nil
}

func (s *Service) List(ctx context.Context) ([]publicationdomain.Publication, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, publicationdomain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, orgID)
}

// RecomputeAffiliate recomputes one affiliate's dependents charge
// against the rules effective now. The scheduler worker calls this for
// each claimed job.
func (s *Service) RecomputeAffiliate(ctx context.Context, affiliateID snowflake.ID) (schedulerdomain.RecomputeOutcome, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return schedulerdomain.RecomputeOutcome{}, publicationdomain.ErrInvalidOrganization
	}

	attr, err := s.attributions.FindByAffiliate(ctx, s.db, orgID, affiliateID)
	if err != nil {
		return schedulerdomain.RecomputeOutcome{}, err
	}
	if attr == nil {
		return schedulerdomain.RecomputeOutcome{SkipReason: "no attribution record"}, nil
	}

	now := s.clock.Now(ctx)
	snap, err := s.pricing.SnapshotAt(ctx, now)
	if err != nil {
		return schedulerdomain.RecomputeOutcome{}, err
	}
	return s.recomputeAttribution(ctx, snap, attr, now, nil)
}

// recomputeAttribution resolves the affiliate's dependents charge from
// the snapshot, diffs it against the last posted charge, and posts the
// delta. Missing preconditions produce a skip, never an error.
func (s *Service) recomputeAttribution(ctx context.Context, snap *pricingruledomain.Snapshot, attr *attributiondomain.Attribution, asOf time.Time, publicationID *snowflake.ID) (schedulerdomain.RecomputeOutcome, error) {
	if attr.DependentsAccountID == nil {
		return schedulerdomain.RecomputeOutcome{SkipReason: "no dependents account attributed"}, nil
	}
	account, err := s.accounts.FindAccountByID(ctx, s.db, attr.OrgID, *attr.DependentsAccountID)
	if err != nil {
		return schedulerdomain.RecomputeOutcome{}, err
	}
	if account == nil {
		return schedulerdomain.RecomputeOutcome{SkipReason: "dependents account missing"}, nil
	}
	if !account.Active {
		return schedulerdomain.RecomputeOutcome{SkipReason: "dependents account inactive"}, nil
	}

	counts, err := s.roster.CountCountableByRelationship(ctx, s.db, attr.OrgID, attr.AffiliateID)
	if err != nil {
		return schedulerdomain.RecomputeOutcome{}, err
	}
	countable := 0
	for _, count := range counts {
		countable += count
	}
	if countable == 0 {
		return schedulerdomain.RecomputeOutcome{SkipReason: "no countable dependents"}, nil
	}

	// The charge is the sum over relationship types; an uncovered
	// count contributes zero rather than failing the affiliate.
	var total int64
	for relTypeID, count := range counts {
		if res, ok := pricing.ResolveTiered(snap, relTypeID, count, asOf); ok {
			total += res.PriceCents
		}
	}

	delta := total - attr.LastDependentsChargeCents
	if delta == 0 {
		return schedulerdomain.RecomputeOutcome{}, nil
	}

	direction := ledgerdomain.DirectionDebit
	amount := delta
	if delta < 0 {
		direction = ledgerdomain.DirectionCredit
		amount = -delta
	}

	unlock := s.poster.LockAccounts(account.ID)
	defer unlock()

	var posted *ledgerdomain.Movement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req := ledgerdomain.PostRequest{
			AccountID:   account.ID,
			Direction:   direction,
			Origin:      ledgerdomain.OriginDependents,
			AmountCents: amount,
			Date:        asOf,
			RefType:     "recompute",
			Metadata: map[string]any{
				"previous_cents":   attr.LastDependentsChargeCents,
				"recomputed_cents": total,
			},
		}
		if publicationID != nil {
			req.RefType = "publication"
			req.RefID = publicationID
		}
		m, err := s.poster.PostInTx(ctx, tx, req)
		if err != nil {
			return err
		}
		posted = m

		attr.LastDependentsChargeCents = total
		attr.UpdatedAt = s.clock.Now(ctx)
		return s.attributions.Update(ctx, tx, attr)
	})
	if err != nil {
		return schedulerdomain.RecomputeOutcome{}, err
	}
	s.poster.AfterCommit(ctx, posted)
	return schedulerdomain.RecomputeOutcome{Posted: true, DeltaCents: delta}, nil
}

func (s *Service) getDraft(ctx context.Context, orgID snowflake.ID, id string) (*publicationdomain.Publication, error) {
	pubID, err := parseID(id)
	if err != nil {
		return nil, publicationdomain.ErrInvalidID
	}
	pub, err := s.repo.FindByID(ctx, s.db, orgID, pubID)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, publicationdomain.ErrNotFound
	}
	if pub.Status != publicationdomain.StatusDraft {
		return nil, publicationdomain.ErrNotDraft
	}
	return pub, nil
}

func (s *Service) countOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.PublishOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) auditLog(ctx context.Context, action string, id snowflake.ID, details map[string]any) {
	if s.audit == nil {
		return
	}
	target := id.String()
	if err := s.audit.AuditLog(ctx, action, "publication", &target, details); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
