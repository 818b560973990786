package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-presence-service/internal/domain/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/webitel/im-presence-service/internal/service"

// RelayMiddleware implements [DECORATOR_PATTERN] to add observability
// to the relay without touching routing logic.
type RelayMiddleware struct {
	Next   Relayer
	Logger *slog.Logger

	tracer   trace.Tracer
	outcomes metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewRelayMiddleware(next Relayer, logger *slog.Logger) Relayer {
	meter := otel.Meter(instrumentationName)
	outcomes, _ := meter.Int64Counter("presence_relay_total",
		metric.WithDescription("Relay attempts by outcome"))
	latency, _ := meter.Float64Histogram("presence_relay_duration_seconds",
		metric.WithDescription("Time spent routing one message"))

	return &RelayMiddleware{
		Next:     next,
		Logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		outcomes: outcomes,
		latency:  latency,
	}
}

func (m *RelayMiddleware) Relay(ctx context.Context, sender, recipient model.Identity, content string) (RelayResult, error) {
	start := time.Now()

	ctx, span := m.tracer.Start(ctx, "presence.relay",
		trace.WithAttributes(
			attribute.String("presence.sender", sender.String()),
			attribute.String("presence.recipient", recipient.String()),
		),
	)
	defer span.End()

	// [EXECUTION]
	res, err := m.Next.Relay(ctx, sender, recipient, content)

	duration := time.Since(start)
	outcome := string(res.Outcome)
	if err != nil {
		outcome = "invalid"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		m.Logger.Warn("RELAY_REJECTED",
			"sender", sender,
			"recipient", recipient,
			"err", err,
		)
	} else {
		span.SetAttributes(
			attribute.String("presence.outcome", outcome),
			attribute.Int("presence.handles", res.Handles),
		)

		m.Logger.Debug("RELAY_COMPLETED",
			"message_id", res.MessageID,
			"sender", sender,
			"recipient", recipient,
			"outcome", outcome,
			"handles", res.Handles,
			"duration_ms", duration.Milliseconds(),
		)
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.outcomes.Add(ctx, 1, attrs)
	m.latency.Record(ctx, duration.Seconds(), attrs)

	return res, err
}
