package registry

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

var ErrHubClosed = errors.New("registry: hub is shut down")

// Registration describes the effect of Register.
type Registration struct {
	Identity model.Identity
	// Joined is true when the identity was not in the presence set before.
	Joined bool
	// Superseded lists the handles that lost their registry entry (last-connect-wins only).
	Superseded []Connector
}

// Departure describes the effect of an authoritative Unregister.
type Departure struct {
	Identity model.Identity
	Conn     Connector
	// Offline is true when the identity left the presence set.
	Offline bool
}

// Hubber defines the gateway for identity ⇄ handle bookkeeping.
type Hubber interface {
	Register(conn Connector) (Registration, error)
	// Unregister removes exactly the entry recorded for connID. ok is false when the
	// handle is unknown or was already superseded.
	Unregister(connID uuid.UUID) (dep Departure, ok bool)
	Lookup(identity model.Identity) []Connector
	IsConnected(identity model.Identity) bool
	Online() []model.Identity
	Stats() model.HubStats
	Policy() SessionPolicy
	Shutdown()
}

// Hub implements Hubber with one RWMutex over two indexes.
type Hub struct {
	mu     sync.RWMutex
	cells  map[model.Identity]*Cell
	owners map[uuid.UUID]model.Identity
	closed bool

	config    hubConfig
	startedAt time.Time
}

type hubConfig struct {
	policy          SessionPolicy
	shutdownTimeout time.Duration
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		cells:  make(map[model.Identity]*Cell),
		owners: make(map[uuid.UUID]model.Identity),
		config: hubConfig{
			policy:          LastConnectWins,
			shutdownTimeout: 100 * time.Millisecond,
		},
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Policy() SessionPolicy { return h.config.policy }

// Register records conn as the (or an) authoritative handle of its identity.
func (h *Hub) Register(conn Connector) (Registration, error) {
	id := conn.GetIdentity()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return Registration{}, ErrHubClosed
	}

	reg := Registration{Identity: id}

	cell, ok := h.cells[id]
	if !ok {
		// [LAZY_INIT] Create cell only when the first connection arrives.
		cell = NewCell(id)
		h.cells[id] = cell
	}
	reg.Joined = cell.IsEmpty()

	reg.Superseded = cell.Attach(conn, h.config.policy)
	for _, old := range reg.Superseded {
		delete(h.owners, old.GetID())
	}
	h.owners[conn.GetID()] = id

	return reg, nil
}

// Unregister performs [GRACEFUL_RECLAMATION] when a session ends.
func (h *Hub) Unregister(connID uuid.UUID) (Departure, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, ok := h.owners[connID]
	if !ok {
		// [STALE_HANDLE] superseded or never registered.
		return Departure{}, false
	}
	delete(h.owners, connID)

	cell, ok := h.cells[id]
	if !ok {
		return Departure{}, false
	}

	var conn Connector
	for _, c := range cell.Sessions() {
		if c.GetID() == connID {
			conn = c
			break
		}
	}

	removed, empty := cell.Detach(connID)
	if !removed {
		return Departure{}, false
	}
	if empty {
		// If no sessions left, purge the cell from memory.
		delete(h.cells, id)
	}

	return Departure{Identity: id, Conn: conn, Offline: empty}, true
}

func (h *Hub) Lookup(identity model.Identity) []Connector {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cell, ok := h.cells[identity]
	if !ok {
		return nil
	}
	return cell.Sessions()
}

func (h *Hub) IsConnected(identity model.Identity) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cell, ok := h.cells[identity]
	return ok && !cell.IsEmpty()
}

// Online derives the presence set from the registry keys, sorted for stable output.
func (h *Hub) Online() []model.Identity {
	h.mu.RLock()
	out := make([]model.Identity, 0, len(h.cells))
	for id, cell := range h.cells {
		if !cell.IsEmpty() {
			out = append(out, id)
		}
	}
	h.mu.RUnlock()

	slices.Sort(out)
	return out
}

func (h *Hub) Stats() model.HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return model.HubStats{
		OnlineUsers:      len(h.cells),
		TotalConnections: len(h.owners),
		SessionPolicy:    string(h.config.policy),
		Uptime:           time.Since(h.startedAt),
	}
}

// Shutdown notifies and closes every registered connection. Further Register calls fail.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	conns := make([]Connector, 0, len(h.owners))
	for _, cell := range h.cells {
		conns = append(conns, cell.Sessions()...)
	}
	h.cells = make(map[model.Identity]*Cell)
	h.owners = make(map[uuid.UUID]model.Identity)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Send(event.NewDisconnectedEvent(conn.GetIdentity(), model.ReasonServerShutdown), h.config.shutdownTimeout)
		conn.Close()
	}
}
