package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sony/gobreaker"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

const (
	// PresenceEventsTopic carries presence changes exported for other services (dashboards, analytics).
	PresenceEventsTopic = "im_presence.events"

	RoutingKeyMetadata = "routing_key"
)

// ErrDispatchSuspended is returned while the circuit breaker is open.
var ErrDispatchSuspended = errors.New("event dispatcher: publishing suspended")

//go:generate mockgen -destination=mock/dispatcher_mock.go -package=mock . EventDispatcher

// EventDispatcher defines the high-level contract for outgoing events.
// This allows the services to stay agnostic of the transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Eventer) error
	Publisher() message.Publisher
}

// eventDispatcher is the concrete implementation (private).
type eventDispatcher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewEventDispatcher wraps the publisher in a circuit breaker so a broker outage
// degrades to fast failures instead of stalling connect/disconnect handling.
func NewEventDispatcher(pub message.Publisher, logger *slog.Logger) EventDispatcher {
	d := &eventDispatcher{
		publisher: pub,
		logger:    logger,
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-dispatcher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("DISPATCH_BREAKER_STATE_CHANGED",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return d
}

// Publish exports ev if it carries a routing key; local-only events are skipped.
func (d *eventDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	exp, ok := ev.(event.Exportable)
	if !ok || exp.GetRoutingKey() == "" {
		return nil
	}
	routingKey := exp.GetRoutingKey()

	out := model.NewOutboundEvent(ev.GetIdentity(), ev.GetKind().String(), ev.GetPayload(), ev.GetOccurredAt())
	payload, err := out.ToJSON()
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(RoutingKeyMetadata, routingKey)
	msg.SetContext(ctx)

	_, err = d.breaker.Execute(func() (interface{}, error) {
		return nil, d.publisher.Publish(PresenceEventsTopic, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrDispatchSuspended, routingKey)
	}
	if err != nil {
		return fmt.Errorf("event dispatcher: failed to publish %s: %w", routingKey, err)
	}

	d.logger.Debug("EVENT_EXPORTED", "routing_key", routingKey, "event_id", ev.GetID())
	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}
