package event

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

var (
	_ Eventer    = (*SystemEvent)(nil)
	_ Exportable = (*SystemEvent)(nil)
)

// SystemEvent is a generic envelope for service-generated signals.
type SystemEvent struct {
	id         string
	identity   model.Identity
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any
	cached     atomic.Value
}

func (e *SystemEvent) GetID() string               { return e.id }
func (e *SystemEvent) GetKind() EventKind          { return e.kind }
func (e *SystemEvent) GetIdentity() model.Identity { return e.identity }
func (e *SystemEvent) GetPriority() EventPriority  { return e.priority }
func (e *SystemEvent) GetOccurredAt() int64        { return e.occurredAt }
func (e *SystemEvent) GetPayload() any             { return e.payload }

// GetRoutingKey is non-empty only for presence changes.
// [PATTERN] im_presence.v1.user.{online|offline}
func (e *SystemEvent) GetRoutingKey() string {
	p, ok := e.payload.(*model.PresenceChangedPayload)
	if e.kind != PresenceChanged || !ok {
		return ""
	}
	status := "offline"
	if p.Online {
		status = "online"
	}
	return fmt.Sprintf("im_presence.v1.user.%s", status)
}

// NewSystemEvent is a universal factory for creating any signal.
func NewSystemEvent(identity model.Identity, kind EventKind, priority EventPriority, payload any) *SystemEvent {
	return &SystemEvent{
		id:         uuid.NewString(),
		identity:   identity,
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}

func NewConnectedEvent(identity model.Identity, connID uuid.UUID) *SystemEvent {
	return NewSystemEvent(identity, Connected, PriorityHigh, &model.ConnectedPayload{
		ConnectionID:  connID.String(),
		Identity:      identity.String(),
		ServerVersion: model.ServerVersion,
	})
}

func NewDisconnectedEvent(identity model.Identity, reason string) *SystemEvent {
	return NewSystemEvent(identity, Disconnected, PriorityHigh, &model.DisconnectedPayload{Reason: reason})
}

func NewSupersededEvent(identity model.Identity, newConnID uuid.UUID) *SystemEvent {
	return NewSystemEvent(identity, Superseded, PriorityNormal, &model.SupersededPayload{
		Identity:     identity.String(),
		ConnectionID: newConnID.String(),
	})
}

// NewOnlineUsersEvent is addressed to nobody in particular: the same instance goes to every connection.
func NewOnlineUsersEvent(revision uint64, users []model.Identity) *SystemEvent {
	return NewSystemEvent("", OnlineUsers, PriorityNormal, &model.OnlineUsersPayload{
		Revision: revision,
		Users:    model.Identities(users),
	})
}

func NewPresenceChangedEvent(identity model.Identity, online bool) *SystemEvent {
	return NewSystemEvent(identity, PresenceChanged, PriorityLow, &model.PresenceChangedPayload{
		Identity: identity.String(),
		Online:   online,
	})
}

// GetCached and SetCached may be called from several writer goroutines at once.
func (e *SystemEvent) GetCached() any { return e.cached.Load() }

func (e *SystemEvent) SetCached(v any) {
	if v != nil {
		e.cached.Store(v)
	}
}
