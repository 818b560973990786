package telemetry

import (
	"context"

	"github.com/webitel/im-presence-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("telemetry",
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config, info ServiceInfo) (*Provider, error) {
		p, err := New(context.Background(), cfg, info)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: p.Shutdown})
		return p, nil
	}),
)
