package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mutualabs/mutua/internal/audit/domain"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/orgcontext"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	publicationdomain "github.com/mutualabs/mutua/internal/publication/domain"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             pricingruledomain.Repository
	RelationshipRepo relationshipdomain.Repository
	Publications     publicationdomain.Repository `optional:"true"`
	AuditSvc         auditdomain.Service          `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             pricingruledomain.Repository
	relationshipRepo relationshipdomain.Repository
	publications     publicationdomain.Repository
	auditSvc         auditdomain.Service
}

func New(p Params) pricingruledomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("pricingrule.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		relationshipRepo: p.RelationshipRepo,
		publications:     p.Publications,
		auditSvc:         p.AuditSvc,
	}
}

func (s *Service) CreateFlat(ctx context.Context, req pricingruledomain.CreateFlatRequest) (*pricingruledomain.FlatRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingruledomain.ErrInvalidOrganization
	}
	if req.PriceCents < 0 {
		return nil, pricingruledomain.ErrInvalidPrice
	}
	if req.ValidFrom.IsZero() {
		return nil, pricingruledomain.ErrInvalidValidity
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.repo.FindFlatByIdempotencyKey(ctx, s.db, orgID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	s.warnOutsideDraft(ctx, orgID)
	now := s.clock.Now(ctx)
	rule := &pricingruledomain.FlatRule{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		PriceCents: req.PriceCents,
		ValidFrom:  req.ValidFrom.UTC(),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if idempotencyKey != "" {
		rule.IdempotencyKey = &idempotencyKey
	}
	if err := s.repo.InsertFlat(ctx, s.db, rule); err != nil {
		if idempotencyKey != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, findErr := s.repo.FindFlatByIdempotencyKey(ctx, s.db, orgID, idempotencyKey); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.audit(ctx, "pricing_rule.flat.create", rule.ID, map[string]any{
		"price_cents": rule.PriceCents,
		"valid_from":  rule.ValidFrom,
	})
	return rule, nil
}

func (s *Service) ListFlat(ctx context.Context) ([]pricingruledomain.FlatRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingruledomain.ErrInvalidOrganization
	}
	return s.repo.ListFlat(ctx, s.db, orgID)
}

func (s *Service) CreateTiers(ctx context.Context, reqs []pricingruledomain.CreateTierRequest) ([]pricingruledomain.TierRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingruledomain.ErrInvalidOrganization
	}
	if len(reqs) == 0 {
		return nil, pricingruledomain.ErrInvalidCountBounds
	}

	s.warnOutsideDraft(ctx, orgID)
	now := s.clock.Now(ctx)
	rules := make([]pricingruledomain.TierRule, 0, len(reqs))
	for _, req := range reqs {
		rule, err := s.buildTier(ctx, orgID, req, now)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}

	// Tiers submitted together must not be able to match the same
	// (count, date) pair. Overlap with previously stored rules is
	// tolerated while an edit is in progress; the resolver tie-breaks.
	for i := range rules {
		for j := i + 1; j < len(rules); j++ {
			if rules[i].Overlaps(rules[j]) {
				return nil, pricingruledomain.ErrOverlappingTiers
			}
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rules {
			if err := s.repo.InsertTier(ctx, tx, &rules[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range rules {
		s.audit(ctx, "pricing_rule.tier.create", rules[i].ID, map[string]any{
			"relationship_type_id": rules[i].RelationshipTypeID.String(),
			"count_from":           rules[i].CountFrom,
			"count_to":             rules[i].CountTo,
			"price_cents":          rules[i].PriceCents,
		})
	}
	return rules, nil
}

func (s *Service) buildTier(ctx context.Context, orgID snowflake.ID, req pricingruledomain.CreateTierRequest, now time.Time) (*pricingruledomain.TierRule, error) {
	relTypeID, err := parseID(req.RelationshipTypeID)
	if err != nil {
		return nil, pricingruledomain.ErrInvalidRelationship
	}
	relType, err := s.relationshipRepo.FindByID(ctx, s.db, orgID, relTypeID)
	if err != nil {
		return nil, err
	}
	if relType == nil || !relType.Active {
		return nil, pricingruledomain.ErrInvalidRelationship
	}

	if req.CountFrom < 1 {
		return nil, pricingruledomain.ErrInvalidCountBounds
	}
	if req.CountTo != nil && *req.CountTo < req.CountFrom {
		return nil, pricingruledomain.ErrInvalidCountBounds
	}
	if req.PriceCents < 0 {
		return nil, pricingruledomain.ErrInvalidPrice
	}
	if req.ValidFrom.IsZero() {
		return nil, pricingruledomain.ErrInvalidValidity
	}
	validFrom := req.ValidFrom.UTC()
	var validTo *time.Time
	if req.ValidTo != nil {
		v := req.ValidTo.UTC()
		if !v.After(validFrom) {
			return nil, pricingruledomain.ErrInvalidValidity
		}
		validTo = &v
	}

	rule := &pricingruledomain.TierRule{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		RelationshipTypeID: relTypeID,
		CountFrom:          req.CountFrom,
		CountTo:            req.CountTo,
		ValidFrom:          validFrom,
		ValidTo:            validTo,
		PriceCents:         req.PriceCents,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.Metadata != nil {
		rule.Metadata = datatypes.JSONMap(req.Metadata)
	}
	return rule, nil
}

func (s *Service) UpdateTier(ctx context.Context, id string, req pricingruledomain.UpdateTierRequest) (*pricingruledomain.TierRule, error) {
	rule, err := s.getTier(ctx, id)
	if err != nil {
		return nil, err
	}
	s.warnOutsideDraft(ctx, rule.OrgID)

	if req.CountFrom != nil {
		if *req.CountFrom < 1 {
			return nil, pricingruledomain.ErrInvalidCountBounds
		}
		rule.CountFrom = *req.CountFrom
	}
	if req.CountTo != nil {
		rule.CountTo = req.CountTo
	}
	if rule.CountTo != nil && *rule.CountTo < rule.CountFrom {
		return nil, pricingruledomain.ErrInvalidCountBounds
	}
	if req.ValidTo != nil {
		v := req.ValidTo.UTC()
		if !v.After(rule.ValidFrom) {
			return nil, pricingruledomain.ErrInvalidValidity
		}
		rule.ValidTo = &v
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return nil, pricingruledomain.ErrInvalidPrice
		}
		rule.PriceCents = *req.PriceCents
	}

	rule.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.UpdateTier(ctx, s.db, rule); err != nil {
		return nil, err
	}

	s.audit(ctx, "pricing_rule.tier.update", rule.ID, map[string]any{
		"count_from":  rule.CountFrom,
		"count_to":    rule.CountTo,
		"price_cents": rule.PriceCents,
	})
	return rule, nil
}

func (s *Service) DeactivateTier(ctx context.Context, id string) (*pricingruledomain.TierRule, error) {
	rule, err := s.getTier(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return rule, nil
	}
	s.warnOutsideDraft(ctx, rule.OrgID)

	rule.Active = false
	rule.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.UpdateTier(ctx, s.db, rule); err != nil {
		return nil, err
	}

	s.audit(ctx, "pricing_rule.tier.deactivate", rule.ID, nil)
	return rule, nil
}

func (s *Service) ListTiers(ctx context.Context, relationshipTypeID string) ([]pricingruledomain.TierRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingruledomain.ErrInvalidOrganization
	}

	var relTypeID snowflake.ID
	if strings.TrimSpace(relationshipTypeID) != "" {
		id, err := parseID(relationshipTypeID)
		if err != nil {
			return nil, pricingruledomain.ErrInvalidRelationship
		}
		relTypeID = id
	}

	return s.repo.ListTiers(ctx, s.db, orgID, relTypeID)
}

func (s *Service) getTier(ctx context.Context, id string) (*pricingruledomain.TierRule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingruledomain.ErrInvalidOrganization
	}

	tierID, err := parseID(id)
	if err != nil {
		return nil, pricingruledomain.ErrInvalidID
	}

	rule, err := s.repo.FindTierByID(ctx, s.db, orgID, tierID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, pricingruledomain.ErrNotFound
	}
	return rule, nil
}

// warnOutsideDraft flags rule mutations made with no draft publication
// open. Edits are still accepted (the resolver tie-breaks and the next
// publish reconciles them) but the publication workflow is the
// intended path.
func (s *Service) warnOutsideDraft(ctx context.Context, orgID snowflake.ID) {
	if s.publications == nil {
		return
	}
	draft, err := s.publications.FindDraft(ctx, s.db, orgID)
	if err != nil || draft != nil {
		return
	}
	s.log.Warn("pricing rule mutated outside an open draft publication",
		zap.String("org_id", orgID.String()))
}

func (s *Service) audit(ctx context.Context, action string, targetID snowflake.ID, details map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, action, "pricing_rule", &id, details); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
