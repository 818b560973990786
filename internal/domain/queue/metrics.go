package queue

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/webitel/im-presence-service/internal/domain/queue"

// DropCounter counts offline-queue discards by reason.
// It is shared by the relay and the queue janitor.
type DropCounter struct {
	counter metric.Int64Counter
}

func NewDropCounter() *DropCounter {
	meter := otel.Meter(meterName)
	counter, _ := meter.Int64Counter("presence_queue_dropped_total",
		metric.WithDescription("Offline messages discarded before delivery"))
	return &DropCounter{counter: counter}
}

func (c *DropCounter) Observe(drops []Drop) {
	if c == nil || c.counter == nil {
		return
	}
	for _, d := range drops {
		c.counter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", string(d.Reason))))
	}
}
