// Package presence pushes the full online set to every live connection.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"golang.org/x/sync/errgroup"
)

// Source yields the current presence set.
type Source interface {
	Online() []model.Identity
}

// Announcer tracks every live connection, superseded ones included, and broadcasts presence to them.
type Announcer interface {
	Subscribe(conn registry.Connector)
	// Unsubscribe returns the connection that was tracked under connID, if any.
	Unsubscribe(connID uuid.UUID) (registry.Connector, bool)
	// Announce snapshots the source and sends the set to every subscriber.
	// It returns the snapshot and the number of connections that accepted it.
	Announce(ctx context.Context) ([]model.Identity, int)
	Len() int
}

var _ Announcer = (*Broadcaster)(nil)

type Broadcaster struct {
	source Source

	mu   sync.RWMutex
	subs map[uuid.UUID]registry.Connector

	// announceMu serializes announcements so that a connection never sees an older set after a newer one.
	announceMu sync.Mutex
	revision   uint64

	sendTimeout time.Duration
	parallelism int
}

func NewBroadcaster(source Source, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		source:      source,
		subs:        make(map[uuid.UUID]registry.Connector),
		sendTimeout: 500 * time.Millisecond,
		parallelism: 32,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broadcaster) Subscribe(conn registry.Connector) {
	b.mu.Lock()
	b.subs[conn.GetID()] = conn
	b.mu.Unlock()
}

func (b *Broadcaster) Unsubscribe(connID uuid.UUID) (registry.Connector, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.subs[connID]
	if ok {
		delete(b.subs, connID)
	}
	return conn, ok
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Announce(ctx context.Context) ([]model.Identity, int) {
	b.announceMu.Lock()
	defer b.announceMu.Unlock()

	online := b.source.Online()
	b.revision++

	// One event instance for everybody: the wire encoding is cached on it.
	ev := event.NewOnlineUsersEvent(b.revision, online)

	b.mu.RLock()
	targets := make([]registry.Connector, 0, len(b.subs))
	for _, conn := range b.subs {
		targets = append(targets, conn)
	}
	b.mu.RUnlock()

	var (
		delivered int
		countMu   sync.Mutex
	)

	// [FAN_OUT] A saturated connection may hold its goroutine for sendTimeout,
	// so sends run in parallel to keep one slow consumer from delaying the rest.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for _, conn := range targets {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			if conn.Send(ev, b.sendTimeout) {
				countMu.Lock()
				delivered++
				countMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return online, delivered
}
