package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mutualabs/mutua/internal/attribution"
	"github.com/mutualabs/mutua/internal/audit"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/config"
	"github.com/mutualabs/mutua/internal/extract"
	"github.com/mutualabs/mutua/internal/ledger"
	"github.com/mutualabs/mutua/internal/migration"
	"github.com/mutualabs/mutua/internal/observability"
	"github.com/mutualabs/mutua/internal/organization"
	"github.com/mutualabs/mutua/internal/pricing"
	"github.com/mutualabs/mutua/internal/pricingrule"
	"github.com/mutualabs/mutua/internal/publication"
	"github.com/mutualabs/mutua/internal/redis"
	"github.com/mutualabs/mutua/internal/relationship"
	"github.com/mutualabs/mutua/internal/roster"
	"github.com/mutualabs/mutua/internal/scheduler"
	"github.com/mutualabs/mutua/internal/server"
	"github.com/mutualabs/mutua/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "mutua",
		Short:   "Mutua back-office CLI",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSchedulerCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the recompute worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			runScheduler()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API server and the recompute worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runMonolith()
			return nil
		},
	}
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		coreModules(),
		server.Module,
	)
	app.Run()
}

func runScheduler() {
	app := fx.New(
		coreModules(),
		fx.Invoke(startScheduler),
	)
	app.Run()
}

func runMonolith() {
	app := fx.New(
		coreModules(),
		server.Module,
		fx.Invoke(startScheduler),
	)
	app.Run()
}

func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		organization.Module,
		fx.Invoke(organization.EnsureDefaultOrg),
		relationship.Module,
		pricingrule.Module,
		pricing.Module,
		roster.Module,
		ledger.Module,
		extract.Module,
		audit.Module,
		attribution.Module,
		publication.Module,
		scheduler.Module,
	)
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
