package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// OutboundEvent is the envelope published from this service to the message bus.
type OutboundEvent struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Identity  string `json:"identity"`
	Kind      string `json:"kind"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

const OutboundSource = "im-presence-service"

func NewOutboundEvent(identity Identity, kind string, payload any, timestamp int64) *OutboundEvent {
	return &OutboundEvent{
		ID:        uuid.NewString(),
		Source:    OutboundSource,
		Identity:  string(identity),
		Kind:      kind,
		Payload:   payload,
		Timestamp: timestamp,
	}
}

func (e *OutboundEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }
