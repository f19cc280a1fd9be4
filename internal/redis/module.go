// Package redis provides the shared client backing the balance cache.
// When no address is configured the client is absent and consumers
// fall back to the database.
package redis

import (
	"context"

	"github.com/mutualabs/mutua/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(NewClient),
)

func NewClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled() {
		log.Info("redis disabled, balance cache off")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
