package wsmarshaller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/service/dto"
)

// Client -> server event names.
const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventError       = "error"
)

// Error codes carried by the error frame.
const (
	CodeBadFrame         = "bad_frame"
	CodeUnknownEvent     = "unknown_event"
	CodeJoinRequired     = "join_required"
	CodeJoinTimeout      = "join_timeout"
	CodeAlreadyJoined    = "already_joined"
	CodeInvalidIdentity  = "invalid_identity"
	CodeIdentityMismatch = "identity_mismatch"
	CodeInvalidMessage   = "invalid_message"
	CodeShuttingDown     = "shutting_down"
	CodeInternal         = "internal"
)

var ErrBadFrame = errors.New("ws: malformed frame")

// WSEvent is the envelope of every websocket message in both directions.
type WSEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// InboundFrame keeps the payload raw until the event name is known.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MarshallDeliveryEvent prepares data for WebSocket transmission.
// The encoding is cached on the event: one announcement or message fanned out
// to many connections is encoded once.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	if cached := ev.GetCached(); cached != nil {
		if data, ok := cached.([]byte); ok {
			return data, nil
		}
	}

	data, err := json.Marshal(&WSEvent{
		Event: ev.GetKind().String(),
		Data:  ev.GetPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("ws: marshal %s: %w", ev.GetKind(), err)
	}

	ev.SetCached(data)
	return data, nil
}

func MarshallError(code, message string) []byte {
	// Both fields are plain strings, this can not fail.
	data, _ := json.Marshal(&WSEvent{
		Event: EventError,
		Data:  &ErrorPayload{Code: code, Message: message},
	})
	return data
}

func DecodeFrame(raw []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	if f.Event == "" {
		return f, fmt.Errorf("%w: missing event name", ErrBadFrame)
	}
	return f, nil
}

// DecodeJoin accepts the identity as a JSON string or number, or as {"identity": "..."}.
func DecodeJoin(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", fmt.Errorf("%w: join without identity", ErrBadFrame)
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		return s, nil
	case '{':
		var obj struct {
			Identity string `json:"identity"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		return obj.Identity, nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", fmt.Errorf("%w: identity must be a string", ErrBadFrame)
		}
		return n.String(), nil
	}
}

func DecodeSendMessage(data json.RawMessage) (*dto.SendMessage, error) {
	req := new(dto.SendMessage)
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return req, nil
}
