/*
Package registry keeps the process-wide directory of live connections.

Key Architectural Concepts:
  - Cells: every online identity is represented by a Cell that holds the
    connection handle(s) currently authoritative for it.
  - Session policy: by default a newer connection supersedes the older one
    (last-connect-wins); the multi_session policy keeps every handle and fans
    delivery out to all of them.
  - Stale handles: unregistering a handle that was already superseded is a
    no-op, so a late disconnect never knocks a reconnected identity offline.
  - Ownership: the Hub is constructed at startup and torn down at shutdown by
    the DI container; nothing reaches it as ambient global state.
*/
package registry

import (
	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// SessionPolicy decides what happens when an identity connects while it already has a live handle.
type SessionPolicy string

const (
	// LastConnectWins keeps at most one handle per identity; the newest silently replaces the older one.
	LastConnectWins SessionPolicy = "last_connect_wins"
	// MultiSession keeps every handle; presence means "at least one handle".
	MultiSession SessionPolicy = "multi_session"
)

func (p SessionPolicy) Valid() bool {
	return p == LastConnectWins || p == MultiSession
}

// Cell holds the authoritative sessions of one identity.
// It is not synchronized on its own: the Hub mutex guards it.
type Cell struct {
	identity model.Identity

	// [SESSIONS]
	// Attach order is kept so lookups are deterministic (oldest first).
	sessions map[uuid.UUID]Connector
	order    []uuid.UUID
}

func NewCell(identity model.Identity) *Cell {
	return &Cell{
		identity: identity,
		sessions: make(map[uuid.UUID]Connector),
	}
}

// Attach adds conn and returns the handles it superseded under the given policy.
func (c *Cell) Attach(conn Connector, policy SessionPolicy) []Connector {
	var superseded []Connector
	if policy == LastConnectWins {
		superseded = c.Sessions()
		c.sessions = make(map[uuid.UUID]Connector, 1)
		c.order = c.order[:0]
	}

	c.sessions[conn.GetID()] = conn
	c.order = append(c.order, conn.GetID())

	return superseded
}

// Detach removes the handle. removed is false when the handle was not (or no longer) part of this cell.
func (c *Cell) Detach(connID uuid.UUID) (removed bool, empty bool) {
	if _, ok := c.sessions[connID]; !ok {
		return false, len(c.sessions) == 0
	}
	delete(c.sessions, connID)
	for i, id := range c.order {
		if id == connID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true, len(c.sessions) == 0
}

// Sessions returns a copy of the live handles in attach order.
func (c *Cell) Sessions() []Connector {
	out := make([]Connector, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sessions[id])
	}
	return out
}

func (c *Cell) Len() int { return len(c.sessions) }

func (c *Cell) IsEmpty() bool { return len(c.sessions) == 0 }
