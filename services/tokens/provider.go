package tokens

import (
	"context"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(ProvideIssuer),
)

func ProvideIssuer(lc fx.Lifecycle, db *gorm.DB, cfg *config.Config, logger *logging.Service) *Issuer {
	issuer := NewIssuer(db, logger)

	if cfg.Auth.TokenPruneInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				issuer.StartPruneWorker(ctx, cfg.Auth.TokenPruneInterval)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}

	return issuer
}
