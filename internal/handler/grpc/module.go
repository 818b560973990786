package grpc

import (
	"go.uber.org/fx"
)

var Module = fx.Module("presence-grpc",
	fx.Provide(
		NewHealthServer,
		NewHealthReporter,
	),
	fx.Invoke(
		RegisterHealthService,
		func(lc fx.Lifecycle, r *HealthReporter) {
			lc.Append(fx.Hook{OnStart: r.OnStart, OnStop: r.OnStop})
		},
	),
)
