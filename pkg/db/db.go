// Package db opens the shared gorm connection from configuration.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mutualabs/mutua/internal/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Cfg *config.Config
	Log *zap.Logger
	Lc  fx.Lifecycle
}

func New(p Params) (*gorm.DB, error) {
	dialector, err := dialectorFor(p.Cfg.Database)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if p.Cfg.Database.Driver != config.DriverSQLite {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          p.Cfg.Database.Name,
			RefreshInterval: 15,
		})); err != nil {
			return nil, fmt.Errorf("install prometheus plugin: %w", err)
		}
	}
	if p.Cfg.Observability.TracingEnabled() {
		if err := conn.Use(otelgorm.NewPlugin()); err != nil {
			return nil, fmt.Errorf("install otelgorm plugin: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(p.Cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(p.Cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(p.Cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(context.Context) error {
			p.Log.Info("closing database connection")
			return sqlDB.Close()
		},
	})

	return conn, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverMySQL:
		return mysql.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
