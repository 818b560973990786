package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-presence-service/internal/adapter/validation"
)

// DomainHandler defines the functional signature for business logic.
// A returned error NACKs the message and lets the retry policy decide.
type DomainHandler[T any] func(ctx context.Context, payload *T) error

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to Domain logic, handling Panic Recovery, Decoding and Validation.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: Poison Pill protection.
		}

		// [VALIDATION]
		if err := validation.Default().Struct(payload); err != nil {
			h.logger.Warn("PAYLOAD_INVALID", "err", validation.Flatten(err), "msg_id", msg.UUID)
			return nil // ACK: retrying can not fix a bad payload.
		}

		// [EXECUTION]
		return fn(msg.Context(), payload)
	}
}
