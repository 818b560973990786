package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

func newConn(id model.Identity) Connector {
	return NewConnector(context.Background(), id, 4, ConnectMetadata{Platform: "test"})
}

func ids(conns []Connector) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.GetID())
	}
	return out
}

func TestHub_LastConnectWins(t *testing.T) {
	hub := NewHub()
	first, second := newConn("alice"), newConn("alice")

	reg, err := hub.Register(first)
	require.NoError(t, err)
	assert.True(t, reg.Joined)
	assert.Empty(t, reg.Superseded)

	reg, err = hub.Register(second)
	require.NoError(t, err)
	assert.False(t, reg.Joined)
	assert.Equal(t, []uuid.UUID{first.GetID()}, ids(reg.Superseded))
	assert.Equal(t, []uuid.UUID{second.GetID()}, ids(hub.Lookup("alice")))

	// The superseded handle disconnecting late must not take alice offline.
	_, ok := hub.Unregister(first.GetID())
	assert.False(t, ok)
	assert.True(t, hub.IsConnected("alice"))

	dep, ok := hub.Unregister(second.GetID())
	require.True(t, ok)
	assert.True(t, dep.Offline)
	assert.Equal(t, second.GetID(), dep.Conn.GetID())
	assert.False(t, hub.IsConnected("alice"))
	assert.Empty(t, hub.Online())
}

func TestHub_MultiSession(t *testing.T) {
	hub := NewHub(WithSessionPolicy(MultiSession))
	a, b := newConn("alice"), newConn("alice")

	_, err := hub.Register(a)
	require.NoError(t, err)
	reg, err := hub.Register(b)
	require.NoError(t, err)
	assert.False(t, reg.Joined)
	assert.Empty(t, reg.Superseded)
	assert.Equal(t, []uuid.UUID{a.GetID(), b.GetID()}, ids(hub.Lookup("alice")))

	dep, ok := hub.Unregister(a.GetID())
	require.True(t, ok)
	assert.False(t, dep.Offline)
	assert.True(t, hub.IsConnected("alice"))

	dep, ok = hub.Unregister(b.GetID())
	require.True(t, ok)
	assert.True(t, dep.Offline)
}

func TestHub_UnknownPolicyKeepsDefault(t *testing.T) {
	hub := NewHub(WithSessionPolicy("round_robin"))
	assert.Equal(t, LastConnectWins, hub.Policy())
}

func TestHub_OnlineSortedAndStats(t *testing.T) {
	hub := NewHub(WithSessionPolicy(MultiSession))
	for _, id := range []model.Identity{"carol", "alice", "bob", "alice"} {
		_, err := hub.Register(newConn(id))
		require.NoError(t, err)
	}

	assert.Equal(t, []model.Identity{"alice", "bob", "carol"}, hub.Online())

	stats := hub.Stats()
	assert.Equal(t, 3, stats.OnlineUsers)
	assert.Equal(t, 4, stats.TotalConnections)
	assert.Equal(t, "multi_session", stats.SessionPolicy)
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub(WithShutdownTimeout(time.Millisecond))
	conn := newConn("alice")
	_, err := hub.Register(conn)
	require.NoError(t, err)

	hub.Shutdown()
	hub.Shutdown() // idempotent

	select {
	case <-conn.Done():
	default:
		t.Fatal("connection still open after shutdown")
	}
	ev := <-conn.Recv()
	assert.Equal(t, event.Disconnected, ev.GetKind())
	assert.Equal(t, model.ReasonServerShutdown, ev.GetPayload().(*model.DisconnectedPayload).Reason)

	_, err = hub.Register(newConn("bob"))
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.Empty(t, hub.Online())
}

func TestHub_ConcurrentChurn(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := model.Identity(fmt.Sprintf("user-%d", i%4))
			for range 200 {
				c := newConn(id)
				_, err := hub.Register(c)
				assert.NoError(t, err)
				hub.Unregister(c.GetID())
			}
		}()
	}
	wg.Wait()

	// Every handle was either superseded or unregistered.
	stats := hub.Stats()
	assert.Equal(t, stats.OnlineUsers, stats.TotalConnections)
	assert.LessOrEqual(t, stats.OnlineUsers, 4)
}
