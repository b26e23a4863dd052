package server

import (
	"context"

	"github.com/tech-arch1tect/gatekeep/config"
	"go.uber.org/fx"
)

func NewProvider() fx.Option {
	return fx.Options(
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, srv *Server, cfg *config.Config, shutdowner fx.Shutdowner) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						if err := srv.Start(); err != nil {
							_ = shutdowner.Shutdown(fx.ExitCode(1))
						}
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					ctx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
					defer cancel()
					return srv.Shutdown(ctx)
				},
			})
		}),
	)
}
