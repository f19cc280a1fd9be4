package organization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/mutualabs/mutua/internal/clock"
	organizationdomain "github.com/mutualabs/mutua/internal/organization/domain"
	"github.com/mutualabs/mutua/internal/organization/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("organization",
	fx.Provide(repository.NewRepository),
)

// EnsureDefaultOrg seeds a default organization so single-tenant
// installs work without any setup call.
func EnsureDefaultOrg(lc fx.Lifecycle, repo organizationdomain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			existing, err := repo.FindFirst(ctx)
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}
			now := clk.Now(ctx)
			org := &organizationdomain.Organization{
				ID:        genID.Generate(),
				Name:      "default",
				Active:    true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.Insert(ctx, org); err != nil {
				return err
			}
			log.Info("seeded default organization", zap.String("org_id", org.ID.String()))
			return nil
		},
	})
}
