package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/orgcontext"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  relationshipdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  relationshipdomain.Repository
}

func New(p Params) relationshipdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("relationship.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req relationshipdomain.CreateRequest) (*relationshipdomain.RelationshipType, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, relationshipdomain.ErrInvalidOrganization
	}

	if req.Code <= 0 {
		return nil, relationshipdomain.ErrInvalidCode
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, relationshipdomain.ErrInvalidDescription
	}

	existing, err := s.repo.FindByCode(ctx, s.db, orgID, req.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, relationshipdomain.ErrDuplicateCode
	}

	now := s.clock.Now(ctx)
	entity := &relationshipdomain.RelationshipType{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Code:        req.Code,
		Description: description,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, entity); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, relationshipdomain.ErrDuplicateCode
		}
		return nil, err
	}

	return entity, nil
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]relationshipdomain.RelationshipType, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, relationshipdomain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, orgID, includeInactive)
}

func (s *Service) Get(ctx context.Context, id string) (*relationshipdomain.RelationshipType, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, relationshipdomain.ErrInvalidOrganization
	}

	typeID, err := parseID(id)
	if err != nil {
		return nil, relationshipdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, orgID, typeID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, relationshipdomain.ErrNotFound
	}
	return entity, nil
}

// Deactivate soft-deactivates a type. Types are never deleted: tier
// rules may still reference them for historic resolutions.
func (s *Service) Deactivate(ctx context.Context, id string) (*relationshipdomain.RelationshipType, error) {
	entity, err := s.Get(ctx, id)
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

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
