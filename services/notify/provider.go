package notify

import (
	"context"
	"fmt"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(ProvideNotifier),
)

// ProvideNotifier builds the configured driver behind an async dispatcher
// that drains on shutdown.
func ProvideNotifier(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (Notifier, error) {
	var driver Notifier
	switch cfg.Mail.Driver {
	case "smtp":
		mailer, err := NewMailNotifier(cfg, logger)
		if err != nil {
			return nil, err
		}
		driver = mailer
	case "log", "":
		driver = NewLogNotifier(cfg.App.Name, logger)
	default:
		return nil, fmt.Errorf("unsupported mail driver: %s (supported: smtp, log)", cfg.Mail.Driver)
	}

	logger.Info("notifier configured",
		zap.String("driver", cfg.Mail.Driver),
		zap.Int("queue_size", cfg.Mail.QueueSize),
		zap.Int("workers", cfg.Mail.Workers))

	dispatcher := NewDispatcher(driver, cfg.Mail.QueueSize, cfg.Mail.Workers, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return dispatcher.Stop(ctx)
		},
	})

	return dispatcher, nil
}
