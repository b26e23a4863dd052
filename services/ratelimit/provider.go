package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideLimiter),
)

func ProvideStore(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) Store {
	switch cfg.RateLimit.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("redis rate limit store not reachable at startup", zap.Error(err))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		logger.Info("using redis rate limit store", zap.String("addr", cfg.Redis.Addr))
		return NewRedisStore(client, cfg.App.Name+":")
	case "memory":
		fallthrough
	default:
		return NewMemoryStore()
	}
}

func ProvideLimiter(store Store, cfg *config.Config, logger *logging.Service) *Limiter {
	return NewLimiter(store, &cfg.RateLimit, logger)
}
