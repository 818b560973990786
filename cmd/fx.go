package cmd

import (
	"log/slog"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/pubsub"
	grpcsrv "github.com/webitel/im-presence-service/infra/server/grpc"
	"github.com/webitel/im-presence-service/infra/server/web"
	"github.com/webitel/im-presence-service/infra/telemetry"
	"github.com/webitel/im-presence-service/internal/adapter/auth"
	dispatcher "github.com/webitel/im-presence-service/internal/adapter/pubsub"
	"github.com/webitel/im-presence-service/internal/domain/presence"
	"github.com/webitel/im-presence-service/internal/domain/queue"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	amqpdi "github.com/webitel/im-presence-service/internal/handler/amqp"
	grpchandler "github.com/webitel/im-presence-service/internal/handler/grpc"
	"github.com/webitel/im-presence-service/internal/handler/rest"
	"github.com/webitel/im-presence-service/internal/handler/ws"
	"github.com/webitel/im-presence-service/internal/service"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(appOptions(cfg))
}

func appOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(telemetry.ServiceInfo{
			Name:      ServiceName,
			Namespace: ServiceNamespace,
			Version:   version,
		}),
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Invoke(WatchConfig),

		telemetry.Module,
		pubsub.Module,
		dispatcher.Module,
		registry.Module,
		queue.Module,
		presence.Module,
		service.Module,
		auth.Module,
		ws.Module,
		rest.Module,
		web.Module,
		grpcsrv.Module,
		grpchandler.Module,
		amqpdi.Module,
	)
}

// WatchConfig applies the settings that are safe to change at runtime.
// Everything else requires a restart.
func WatchConfig(cfg *config.Config, level *slog.LevelVar, q queue.Queuer, logger *slog.Logger) {
	cfg.Watch(func(next *config.Config) {
		if err := level.UnmarshalText([]byte(next.Log.Level)); err != nil {
			logger.Warn("CONFIG_LOG_LEVEL_IGNORED", "level", next.Log.Level, "err", err)
		}
		dropped := q.SetLimits(queue.LimitsFromConfig(next.Queue))
		logger.Info("CONFIG_RELOADED",
			"log_level", level.Level().String(),
			"queue_max_per_recipient", next.Queue.MaxPerRecipient,
			"queue_overflow", next.Queue.Overflow,
			"queue_trimmed", len(dropped),
		)
	}, func(err error) {
		logger.Error("CONFIG_RELOAD_REJECTED", "err", err)
	})
}
