package event

import (
	"sync/atomic"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

var _ Eventer = (*MessageEvent)(nil)

// MessageEvent carries one relayed message to the recipient's connection(s).
// The same instance is shared by every session of the recipient, so the wire
// encoding is cached on first use.
type MessageEvent struct {
	Message model.PendingMessage
	cached  atomic.Value
}

func NewMessageEvent(msg model.PendingMessage) *MessageEvent {
	return &MessageEvent{Message: msg}
}

func (e *MessageEvent) GetID() string               { return e.Message.ID.String() }
func (e *MessageEvent) GetKind() EventKind          { return MessageReceived }
func (e *MessageEvent) GetIdentity() model.Identity { return e.Message.Recipient }
func (e *MessageEvent) GetPriority() EventPriority  { return PriorityHigh }
func (e *MessageEvent) GetOccurredAt() int64        { return e.Message.CreatedAt.UnixMilli() }

func (e *MessageEvent) GetPayload() any {
	return &model.ReceivedMessagePayload{
		ID:        e.Message.ID.String(),
		SenderID:  e.Message.Sender.String(),
		Content:   e.Message.Content,
		Timestamp: e.Message.CreatedAt.UnixMilli(),
	}
}

// GetCached and SetCached may be called from several writer goroutines at once.
func (e *MessageEvent) GetCached() any { return e.cached.Load() }

func (e *MessageEvent) SetCached(v any) {
	if v != nil {
		e.cached.Store(v)
	}
}
