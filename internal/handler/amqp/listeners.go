package amqp

import (
	"context"
	"errors"
	"fmt"

	"github.com/webitel/im-presence-service/internal/service"
	"github.com/webitel/im-presence-service/internal/service/dto"
)

// [ON_SEND_MESSAGE]
// Server-side producers (course notifications, other services) relay a message
// exactly the way a connected client would.
func (h *MessageHandler) OnSendMessageV1(ctx context.Context, raw *dto.SendMessage) error {
	traceID := TraceIDFromContext(ctx)

	sender := raw.Sender()
	if sender.IsZero() {
		// The bus has no session to infer the sender from.
		h.logger.Warn("RELAY_SENDER_MISSING", "trace_id", traceID, "recipient", raw.ReceiverID)
		return nil
	}

	res, err := h.relayer.Relay(ctx, sender, raw.Recipient(), raw.Content)
	if errors.Is(err, service.ErrInvalidMessage) || errors.Is(err, service.ErrEmptyIdentity) {
		h.logger.Warn("RELAY_REQUEST_REJECTED",
			"trace_id", traceID,
			"sender", sender,
			"recipient", raw.ReceiverID,
			"err", err,
		)
		return nil // ACK: terminal.
	}
	if err != nil {
		return fmt.Errorf("relay [trace_id=%s]: %w", traceID, err)
	}

	h.logger.Debug("RELAY_REQUEST_HANDLED",
		"trace_id", traceID,
		"message_id", res.MessageID,
		"outcome", res.Outcome,
	)
	return nil
}
