package grpc

import (
	"context"

	"github.com/webitel/im-presence-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("grpc-server",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, s *Server) {
		if !cfg.GRPC.Enabled {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return s.Listen()
			},
			OnStop: func(ctx context.Context) error {
				s.Shutdown(ctx)
				return nil
			},
		})
	}),
)
