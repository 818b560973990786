package service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/webitel/im-presence-service/internal/adapter/pubsub/mock"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/presence"
	"github.com/webitel/im-presence-service/internal/domain/queue"
	"github.com/webitel/im-presence-service/internal/domain/registry"
)

type harnessConfig struct {
	policy             registry.SessionPolicy
	limits             queue.Limits
	queueOnSendFailure bool
	strictDispatcher   bool
	now                func() time.Time
}

type harness struct {
	hub        *registry.Hub
	queue      *queue.Queue
	dispatcher *mock.MockEventDispatcher
	delivery   *DeliveryService
	relay      *RelayService
	drops      []queue.Drop
	logs       bytes.Buffer
}

func newHarness(t *testing.T, opts ...func(*harnessConfig)) *harness {
	t.Helper()

	cfg := harnessConfig{
		policy: registry.LastConnectWins,
		limits: queue.Limits{MaxPerRecipient: 100, MaxRecipients: 100, Overflow: queue.DropOldest},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctrl := gomock.NewController(t)

	queueOpts := []queue.Option{queue.WithLimits(cfg.limits)}
	if cfg.now != nil {
		queueOpts = append(queueOpts, queue.WithClock(cfg.now))
	}

	h := &harness{
		hub:        registry.NewHub(registry.WithSessionPolicy(cfg.policy), registry.WithShutdownTimeout(10*time.Millisecond)),
		queue:      queue.NewQueue(queueOpts...),
		dispatcher: mock.NewMockEventDispatcher(ctrl),
	}
	if !cfg.strictDispatcher {
		h.dispatcher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	}

	logger := slog.New(slog.NewJSONHandler(&h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	locks := NewIdentityLocks()
	broadcaster := presence.NewBroadcaster(h.hub, presence.WithSendTimeout(10*time.Millisecond))

	h.delivery = NewDeliveryService(h.hub, h.queue, broadcaster, h.dispatcher, locks, logger, DeliveryParams{
		BufferSize:  32,
		SendTimeout: 10 * time.Millisecond,
		OnDrop:      func(d []queue.Drop) { h.drops = append(h.drops, d...) },
	})
	h.relay = NewRelayService(h.hub, h.queue, locks, logger, RelayParams{
		SendTimeout:        10 * time.Millisecond,
		MaxContentBytes:    1024,
		QueueOnSendFailure: cfg.queueOnSendFailure,
		OnDrop:             func(d []queue.Drop) { h.drops = append(h.drops, d...) },
	})

	t.Cleanup(h.hub.Shutdown)
	return h
}

// logRecords returns the decoded log lines with the given message.
func (h *harness) logRecords(t *testing.T, msg string) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(h.logs.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

// pending returns everything buffered on conn without blocking.
func pending(conn registry.Connector) []event.Eventer {
	var out []event.Eventer
	for {
		select {
		case ev := <-conn.Recv():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(evs []event.Eventer) []event.EventKind {
	out := make([]event.EventKind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.GetKind())
	}
	return out
}

func messages(evs []event.Eventer) []*model.ReceivedMessagePayload {
	var out []*model.ReceivedMessagePayload
	for _, ev := range evs {
		if p, ok := ev.GetPayload().(*model.ReceivedMessagePayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func lastOnlineUsers(evs []event.Eventer) *model.OnlineUsersPayload {
	var last *model.OnlineUsersPayload
	for _, ev := range evs {
		if p, ok := ev.GetPayload().(*model.OnlineUsersPayload); ok {
			last = p
		}
	}
	return last
}

func modelID(raw string) model.Identity { return model.ParseIdentity(raw) }
