package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
)

type staticSource struct {
	mu  sync.Mutex
	ids []model.Identity
}

func (s *staticSource) Online() []model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Identity(nil), s.ids...)
}

func (s *staticSource) set(ids ...model.Identity) {
	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
}

func onlineUsers(t *testing.T, c registry.Connector) *model.OnlineUsersPayload {
	t.Helper()
	select {
	case ev := <-c.Recv():
		require.Equal(t, event.OnlineUsers, ev.GetKind())
		return ev.GetPayload().(*model.OnlineUsersPayload)
	case <-time.After(time.Second):
		t.Fatal("no onlineUsers frame")
		return nil
	}
}

func TestBroadcaster_AnnounceReachesEverySubscriber(t *testing.T) {
	src := &staticSource{}
	src.set("alice", "bob")
	b := NewBroadcaster(src, WithParallelism(2))

	conns := make([]registry.Connector, 5)
	for i := range conns {
		conns[i] = registry.NewConnector(context.Background(), "alice", 4, registry.ConnectMetadata{})
		b.Subscribe(conns[i])
	}
	assert.Equal(t, 5, b.Len())

	online, delivered := b.Announce(context.Background())
	assert.Equal(t, []model.Identity{"alice", "bob"}, online)
	assert.Equal(t, 5, delivered)

	for _, c := range conns {
		p := onlineUsers(t, c)
		assert.Equal(t, uint64(1), p.Revision)
		assert.Equal(t, []string{"alice", "bob"}, p.Users)
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(&staticSource{})
	c := registry.NewConnector(context.Background(), "alice", 1, registry.ConnectMetadata{})
	b.Subscribe(c)

	got, ok := b.Unsubscribe(c.GetID())
	require.True(t, ok)
	assert.Equal(t, c.GetID(), got.GetID())

	_, ok = b.Unsubscribe(c.GetID())
	assert.False(t, ok)

	_, delivered := b.Announce(context.Background())
	assert.Zero(t, delivered)
}

func TestBroadcaster_ClosedAndSaturatedConnections(t *testing.T) {
	src := &staticSource{}
	src.set("alice")
	b := NewBroadcaster(src, WithSendTimeout(time.Millisecond))

	healthy := registry.NewConnector(context.Background(), "alice", 4, registry.ConnectMetadata{})
	closed := registry.NewConnector(context.Background(), "bob", 4, registry.ConnectMetadata{})
	closed.Close()
	full := registry.NewConnector(context.Background(), "carol", 1, registry.ConnectMetadata{})
	require.True(t, full.Send(event.NewConnectedEvent("carol", full.GetID()), time.Millisecond))

	for _, c := range []registry.Connector{healthy, closed, full} {
		b.Subscribe(c)
	}

	_, delivered := b.Announce(context.Background())
	assert.Equal(t, 1, delivered)
	assert.Equal(t, uint64(1), full.Dropped())
}

func TestBroadcaster_RevisionsIncrease(t *testing.T) {
	src := &staticSource{}
	b := NewBroadcaster(src)
	c := registry.NewConnector(context.Background(), "alice", 64, registry.ConnectMetadata{})
	b.Subscribe(c)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Announce(context.Background())
		}()
	}
	wg.Wait()

	var last uint64
	for range 20 {
		p := onlineUsers(t, c)
		assert.Greater(t, p.Revision, last)
		last = p.Revision
	}
}
