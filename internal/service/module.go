package service

import (
	"log/slog"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/queue"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		NewIdentityLocks,
		func(cfg *config.Config, drops *queue.DropCounter) DeliveryParams {
			return DeliveryParams{
				BufferSize:  cfg.WS.SendBuffer,
				SendTimeout: cfg.Registry.SendTimeout,
				OnDrop:      drops.Observe,
			}
		},
		func(cfg *config.Config, drops *queue.DropCounter) RelayParams {
			return RelayParams{
				SendTimeout:        cfg.Registry.SendTimeout,
				MaxContentBytes:    cfg.Relay.MaxContentBytes,
				QueueOnSendFailure: cfg.Relay.QueueOnSendFailure,
				OnDrop:             drops.Observe,
			}
		},

		// Domain services
		fx.Annotate(
			NewDeliveryService,
			fx.As(new(Deliverer)),
		),
		NewRelayService,

		// [DECORATION_LAYER] Relayer consumers receive the instrumented chain
		func(orig *RelayService, logger *slog.Logger) Relayer {
			return NewRelayMiddleware(orig, logger)
		},
	),
)
