package queue

import (
	"context"
	"log/slog"

	"github.com/webitel/im-presence-service/config"
	"go.uber.org/fx"
)

// LimitsFromConfig maps the queue section of the configuration.
func LimitsFromConfig(cfg config.QueueConfig) Limits {
	return Limits{
		MaxPerRecipient: cfg.MaxPerRecipient,
		MaxRecipients:   cfg.MaxRecipients,
		Retention:       cfg.Retention,
		Overflow:        OverflowPolicy(cfg.Overflow),
	}
}

var Module = fx.Module("offline-queue",
	fx.Provide(
		func(cfg *config.Config) *Queue {
			return NewQueue(WithLimits(LimitsFromConfig(cfg.Queue)))
		},
		func(q *Queue) Queuer { return q },
		NewDropCounter,
	),
	fx.Invoke(func(lc fx.Lifecycle, q *Queue, cfg *config.Config, drops *DropCounter, logger *slog.Logger) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				// [JANITOR] Reclaims memory held for recipients who never return.
				go func() {
					defer close(done)
					q.Run(ctx, cfg.Queue.SweepInterval, func(expired []Drop) {
						drops.Observe(expired)
						logger.Info("OFFLINE_QUEUE_SWEPT", "expired", len(expired))
					})
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-stopCtx.Done():
				}
				return nil
			},
		})
	}),
)
