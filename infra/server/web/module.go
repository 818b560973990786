package web

import (
	"context"

	"github.com/webitel/im-presence-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("http-server",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return s.Listen()
			},
			OnStop: func(ctx context.Context) error {
				stopCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
				defer cancel()
				return s.Shutdown(stopCtx)
			},
		})
	}),
)
