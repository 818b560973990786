package event

import "github.com/webitel/im-presence-service/internal/domain/model"

type EventKind int16

const (
	Connected       EventKind = iota + 1 // [SYSTEM]
	Disconnected                         // [SYSTEM]
	Superseded                           // [SYSTEM]
	OnlineUsers                          // [PRESENCE]
	MessageReceived                      // [BUSINESS]
	PresenceChanged                      // [EXPORT]
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Superseded:
		return "superseded"
	case OnlineUsers:
		return "onlineUsers"
	case MessageReceived:
		return "receiveMessage"
	case PresenceChanged:
		return "presenceChanged"
	default:
		return "unknown"
	}
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets flowing to connections.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetIdentity() model.Identity
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}

// Exportable defines an event that should be re-published to the message bus.
type Exportable interface {
	// An empty routing key means the event stays local.
	GetRoutingKey() string
}
