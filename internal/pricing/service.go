package pricing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mutualabs/mutua/internal/orgcontext"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Service loads rule snapshots and delegates to the pure resolver.
type Service struct {
	db   *gorm.DB
	repo pricingruledomain.Repository
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Repo pricingruledomain.Repository
}

func NewService(p Params) *Service {
	return &Service{db: p.DB, repo: p.Repo}
}

func (s *Service) SnapshotAt(ctx context.Context, asOf time.Time) (*pricingruledomain.Snapshot, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, pricingruledomain.ErrInvalidOrganization
	}
	return s.repo.SnapshotAt(ctx, s.db, orgID, asOf.UTC())
}

// FlatPriceAt resolves the co-insurance charge on asOf; zero when no
// rule covers the date.
func (s *Service) FlatPriceAt(ctx context.Context, asOf time.Time) (Resolution, bool, error) {
	snap, err := s.SnapshotAt(ctx, asOf)
	if err != nil {
		return Resolution{}, false, err
	}
	res, ok := ResolveFlat(snap, asOf.UTC())
	return res, ok, nil
}

// TieredPriceAt resolves the dependents charge for one relationship
// type and countable-dependent count on asOf.
func (s *Service) TieredPriceAt(ctx context.Context, relationshipTypeID snowflake.ID, count int, asOf time.Time) (Resolution, bool, error) {
	snap, err := s.SnapshotAt(ctx, asOf)
	if err != nil {
		return Resolution{}, false, err
	}
	res, ok := ResolveTiered(snap, relationshipTypeID, count, asOf.UTC())
	return res, ok, nil
}
