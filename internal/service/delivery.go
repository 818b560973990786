package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/adapter/pubsub"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/presence"
	"github.com/webitel/im-presence-service/internal/domain/queue"
	"github.com/webitel/im-presence-service/internal/domain/registry"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (Websocket/HTTP)
// It is the connection lifecycle controller: connect registers, flushes the
// offline queue and announces; disconnect unregisters and announces only when
// the identity really left.
type Deliverer interface {
	Subscribe(ctx context.Context, identity model.Identity, meta registry.ConnectMetadata) (registry.Connector, error)
	// Unsubscribe reports whether the handle was still authoritative for its identity.
	Unsubscribe(connID uuid.UUID) bool
	Online() []model.Identity
	Stats() model.HubStats
}

var _ Deliverer = (*DeliveryService)(nil)

type DeliveryService struct {
	hub        registry.Hubber
	queue      queue.Queuer
	announcer  presence.Announcer
	dispatcher pubsub.EventDispatcher
	locks      *IdentityLocks
	logger     *slog.Logger

	bufferSize  int
	sendTimeout time.Duration
	onDrop      func([]queue.Drop)
}

type DeliveryParams struct {
	BufferSize  int
	SendTimeout time.Duration
	// OnDrop observes messages that expired in the queue or did not fit back after an interrupted replay.
	OnDrop func([]queue.Drop)
}

func NewDeliveryService(
	hub registry.Hubber,
	q queue.Queuer,
	announcer presence.Announcer,
	dispatcher pubsub.EventDispatcher,
	locks *IdentityLocks,
	logger *slog.Logger,
	params DeliveryParams,
) *DeliveryService {
	return &DeliveryService{
		hub:         hub,
		queue:       q,
		announcer:   announcer,
		dispatcher:  dispatcher,
		locks:       locks,
		logger:      logger,
		bufferSize:  params.BufferSize,
		sendTimeout: params.SendTimeout,
		onDrop:      params.OnDrop,
	}
}

// [SUBSCRIBE] Connecting -> Connected
func (s *DeliveryService) Subscribe(ctx context.Context, identity model.Identity, meta registry.ConnectMetadata) (registry.Connector, error) {
	if identity.IsZero() {
		return nil, ErrEmptyIdentity
	}

	// [STRATEGY] The buffer must hold a full replay plus the handshake and a few
	// announcements. Queue limits can be raised at runtime, so they are read per connect.
	bufferSize := max(s.bufferSize, s.queue.Limits().MaxPerRecipient+16)
	conn := registry.NewConnector(ctx, identity, bufferSize, meta)

	// 1. Handshake frame is always the first thing the client reads.
	conn.Send(event.NewConnectedEvent(identity, conn.GetID()), s.sendTimeout)

	// 2. Register + drain + replay as one step for this identity: a relay for the
	// same recipient either completes before (and lands in the drained queue) or
	// after (and finds the new handle).
	unlock := s.locks.lock(identity)
	reg, err := s.hub.Register(conn)
	if err != nil {
		unlock()
		conn.Close()
		if errors.Is(err, registry.ErrHubClosed) {
			return nil, fmt.Errorf("subscribe %s: %w", identity, ErrShuttingDown)
		}
		return nil, fmt.Errorf("subscribe %s: %w", identity, err)
	}
	replayed := s.replay(conn)

	// 3. Track for announcements only after the replay, so queued messages precede any presence frame.
	s.announcer.Subscribe(conn)
	unlock()

	// 4. Older handles stay open but lose their registry entry.
	for _, old := range reg.Superseded {
		old.Send(event.NewSupersededEvent(identity, conn.GetID()), s.sendTimeout)
		s.logger.Info("CONNECTION_SUPERSEDED",
			"identity", identity,
			"conn_id", old.GetID(),
			"new_conn_id", conn.GetID(),
		)
	}

	// 5. Always announce: even a supersession gives the new handle its first snapshot.
	online, reached := s.announcer.Announce(ctx)

	if reg.Joined {
		s.export(ctx, event.NewPresenceChangedEvent(identity, true))
	}

	s.logger.Info("CONNECTION_REGISTERED",
		"identity", identity,
		"conn_id", conn.GetID(),
		"platform", meta.Platform,
		"joined", reg.Joined,
		"replayed", replayed,
		"online", len(online),
		"announced_to", reached,
	)

	return conn, nil
}

// replay flushes the offline queue into conn in enqueue order. The caller holds the identity lock.
func (s *DeliveryService) replay(conn registry.Connector) int {
	identity := conn.GetIdentity()
	pending, expired := s.queue.Drain(identity)
	s.observe(expired)

	for i, msg := range pending {
		if conn.Send(event.NewMessageEvent(msg), s.sendTimeout) {
			continue
		}

		// [REQUEUE] The connection died mid-flush: keep the rest for the next connect.
		rest := pending[i:]
		drops := s.queue.Restore(identity, rest)
		s.observe(drops)
		s.logger.Warn("OFFLINE_QUEUE_REPLAY_INTERRUPTED",
			"identity", identity,
			"conn_id", conn.GetID(),
			"delivered", i,
			"restored", len(rest)-len(drops),
			"dropped", len(drops),
		)
		return i
	}

	return len(pending)
}

// [UNSUBSCRIBE] Connected -> Disconnected
func (s *DeliveryService) Unsubscribe(connID uuid.UUID) bool {
	conn, tracked := s.announcer.Unsubscribe(connID)
	if !tracked {
		return false
	}
	defer conn.Close()

	identity := conn.GetIdentity()
	meta := conn.GetMetadata()
	session := time.Since(conn.GetCreatedAt())

	unlock := s.locks.lock(identity)
	dep, ok := s.hub.Unregister(connID)
	unlock()

	if !ok {
		// [STALE_HANDLE] A newer connection already owns the identity and already announced.
		s.logger.Debug("STALE_CONNECTION_CLOSED", "identity", identity, "conn_id", connID)
		return false
	}

	if dep.Offline {
		ctx := context.Background()
		online, reached := s.announcer.Announce(ctx)
		s.export(ctx, event.NewPresenceChangedEvent(identity, false))

		s.logger.Info("CONNECTION_UNREGISTERED",
			"identity", identity,
			"conn_id", connID,
			"platform", meta.Platform,
			"session_ms", session.Milliseconds(),
			"online", len(online),
			"announced_to", reached,
			"dropped_events", conn.Dropped(),
		)
		return true
	}

	s.logger.Info("SESSION_CLOSED",
		"identity", identity,
		"conn_id", connID,
		"platform", meta.Platform,
		"session_ms", session.Milliseconds(),
		"dropped_events", conn.Dropped(),
	)
	return true
}

func (s *DeliveryService) Online() []model.Identity {
	return s.hub.Online()
}

func (s *DeliveryService) Stats() model.HubStats {
	stats := s.hub.Stats()
	qs := s.queue.Stats()
	stats.QueuedMessages = qs.Messages
	stats.QueuedRecipients = qs.Recipients
	stats.DroppedMessages = qs.Dropped
	return stats
}

func (s *DeliveryService) observe(drops []queue.Drop) {
	if s.onDrop != nil && len(drops) > 0 {
		s.onDrop(drops)
	}
}

// export is best effort: presence on this node never depends on the bus.
func (s *DeliveryService) export(ctx context.Context, ev event.Eventer) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, ev); err != nil {
		s.logger.Warn("PRESENCE_EXPORT_FAILED", "identity", ev.GetIdentity(), "err", err)
	}
}
