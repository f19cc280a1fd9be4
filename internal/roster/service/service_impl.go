package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/orgcontext"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             rosterdomain.Repository
	RelationshipRepo relationshipdomain.Repository
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             rosterdomain.Repository
	relationshipRepo relationshipdomain.Repository
}

func New(p Params) rosterdomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("roster.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		relationshipRepo: p.RelationshipRepo,
	}
}

func (s *Service) Create(ctx context.Context, req rosterdomain.CreateRequest) (*rosterdomain.Dependent, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, rosterdomain.ErrInvalidOrganization
	}

	affiliateID, err := parseID(req.AffiliateID)
	if err != nil {
		return nil, rosterdomain.ErrInvalidAffiliate
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, rosterdomain.ErrInvalidName
	}
	relTypeID, err := parseID(req.RelationshipTypeID)
	if err != nil {
		return nil, rosterdomain.ErrInvalidRelationship
	}
	relType, err := s.relationshipRepo.FindByID(ctx, s.db, orgID, relTypeID)
	if err != nil {
		return nil, err
	}
	if relType == nil || !relType.Active {
		return nil, rosterdomain.ErrInvalidRelationship
	}

	countsTowardTier := true
	if req.CountsTowardTier != nil {
		countsTowardTier = *req.CountsTowardTier
	}

	now := s.clock.Now(ctx)
	entity := &rosterdomain.Dependent{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		AffiliateID:        affiliateID,
		Name:               name,
		BirthDate:          req.BirthDate,
		RelationshipTypeID: relTypeID,
		Active:             true,
		CountsTowardTier:   countsTowardTier,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *Service) Update(ctx context.Context, id string, req rosterdomain.UpdateRequest) (*rosterdomain.Dependent, error) {
	entity, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, rosterdomain.ErrInvalidName
		}
		entity.Name = name
	}
	if req.BirthDate != nil {
		entity.BirthDate = req.BirthDate
	}
	if req.CountsTowardTier != nil {
		entity.CountsTowardTier = *req.CountsTowardTier
	}

	entity.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.Update(ctx, s.db, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (*rosterdomain.Dependent, error) {
	entity, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entity.Active {
		return entity, nil
	}

	entity.Active = false
	entity.UpdatedAt = s.clock.Now(ctx)
	if err := s.repo.Update(ctx, s.db, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *Service) List(ctx context.Context, affiliateID string) ([]rosterdomain.Dependent, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, rosterdomain.ErrInvalidOrganization
	}
	affID, err := parseID(affiliateID)
	if err != nil {
		return nil, rosterdomain.ErrInvalidAffiliate
	}
	return s.repo.ListByAffiliate(ctx, s.db, orgID, affID)
}

func (s *Service) get(ctx context.Context, id string) (*rosterdomain.Dependent, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, rosterdomain.ErrInvalidOrganization
	}
	depID, err := parseID(id)
	if err != nil {
		return nil, rosterdomain.ErrInvalidID
	}
	entity, err := s.repo.FindByID(ctx, s.db, orgID, depID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, rosterdomain.ErrNotFound
	}
	return entity, nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
