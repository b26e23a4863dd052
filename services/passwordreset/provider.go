package passwordreset

import (
	"context"
	"time"

	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(NewBroker),
	fx.Invoke(registerPruneWorker),
)

const pruneInterval = time.Hour

// registerPruneWorker deletes expired reset tokens hourly.
func registerPruneWorker(lc fx.Lifecycle, broker *Broker, logger *logging.Service) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(pruneInterval)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if _, err := broker.PruneExpired(ctx); err != nil && ctx.Err() == nil {
							logger.Error("password reset prune worker failed", zap.Error(err))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
