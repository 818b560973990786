package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	slogmulti "github.com/samber/slog-multi"
	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/telemetry"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.uber.org/fx"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ProvideLogger builds the process logger. The returned LevelVar is adjusted on config reloads.
func ProvideLogger(lc fx.Lifecycle, cfg *config.Config, tel *telemetry.Provider) (*slog.Logger, *slog.LevelVar, error) {
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Log.Level, err)
	}

	var out io.Writer = os.Stdout
	if cfg.Log.File != "" {
		// [ROTATION] Size-based rollover, old segments compressed
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   true,
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return rotator.Close() }})
		out = rotator
	}

	var sinks []slog.Handler
	if cfg.Log.Otel {
		if lp := tel.LoggerProvider(); lp != nil {
			sinks = append(sinks, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(lp)))
		}
	}

	logger := slog.New(newLogHandler(out, level, cfg.Log.Format, sinks...)).With(
		"service", ServiceName,
		"instance", cfg.Service.ID,
	)
	slog.SetDefault(logger)

	if cfg.Log.Otel && tel.LoggerProvider() == nil {
		logger.Warn("LOG_OTEL_BRIDGE_SKIPPED", "reason", "telemetry endpoint is not configured")
	}

	return logger, level, nil
}

// newLogHandler writes to out in the configured format and mirrors every record into sinks.
func newLogHandler(out io.Writer, level slog.Leveler, format string, sinks ...slog.Handler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(sinks) == 0 {
		return handler
	}
	return slogmulti.Fanout(append([]slog.Handler{handler}, sinks...)...)
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}
