package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func msg(c *clock, to model.Identity, content string) model.PendingMessage {
	return model.NewPendingMessage("bob", to, content, c.Now())
}

func contents(msgs []model.PendingMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

// drained discards the expired drops for tests that never expire anything.
func drained(q *Queue, recipient model.Identity) []model.PendingMessage {
	msgs, _ := q.Drain(recipient)
	return msgs
}

func reasons(drops []Drop) []DropReason {
	out := make([]DropReason, 0, len(drops))
	for _, d := range drops {
		out = append(out, d.Reason)
	}
	return out
}

func TestQueue_DrainKeepsOrder(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now))

	for i := range 5 {
		res := q.Enqueue(msg(c, "alice", fmt.Sprint(i)))
		require.True(t, res.Accepted)
	}
	assert.Equal(t, 5, q.Len("alice"))

	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, contents(drained(q, "alice")))
	assert.Zero(t, q.Len("alice"))
	msgs, drops := q.Drain("alice")
	assert.Nil(t, msgs)
	assert.Nil(t, drops)
	assert.Equal(t, Stats{}, q.Stats())
}

func TestQueue_Overflow(t *testing.T) {
	tests := []struct {
		name         string
		policy       OverflowPolicy
		wantAccepted bool
		wantKept     []string
		wantReason   DropReason
		wantDropped  string
	}{
		{
			name:         "drop oldest",
			policy:       DropOldest,
			wantAccepted: true,
			wantKept:     []string{"b", "c", "d"},
			wantReason:   DropOverflow,
			wantDropped:  "a",
		},
		{
			name:         "reject new",
			policy:       RejectNew,
			wantAccepted: false,
			wantKept:     []string{"a", "b", "c"},
			wantReason:   DropRejected,
			wantDropped:  "d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClock()
			q := NewQueue(WithClock(c.Now), WithLimits(Limits{MaxPerRecipient: 3, Overflow: tt.policy}))
			for _, s := range []string{"a", "b", "c"} {
				require.True(t, q.Enqueue(msg(c, "alice", s)).Accepted)
			}

			res := q.Enqueue(msg(c, "alice", "d"))
			assert.Equal(t, tt.wantAccepted, res.Accepted)
			require.Len(t, res.Dropped, 1)
			assert.Equal(t, tt.wantReason, res.Dropped[0].Reason)
			assert.Equal(t, tt.wantDropped, res.Dropped[0].Message.Content)
			assert.Equal(t, uint64(1), q.Stats().Dropped)

			assert.Equal(t, tt.wantKept, contents(drained(q, "alice")))
		})
	}
}

func TestQueue_Retention(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now), WithLimits(Limits{Retention: time.Hour}))

	q.Enqueue(msg(c, "alice", "old"))
	q.Enqueue(msg(c, "carol", "old"))
	c.Advance(45 * time.Minute)
	q.Enqueue(msg(c, "alice", "fresh"))
	c.Advance(30 * time.Minute)

	drops := q.Sweep()
	assert.Equal(t, []DropReason{DropExpired, DropExpired}, reasons(drops))
	assert.Zero(t, q.Len("carol"))
	assert.Equal(t, 1, q.Stats().Recipients)

	assert.Equal(t, []string{"fresh"}, contents(drained(q, "alice")))
}

func TestQueue_DrainSkipsExpired(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now), WithLimits(Limits{Retention: time.Minute}))

	q.Enqueue(msg(c, "alice", "stale"))
	c.Advance(2 * time.Minute)

	q.Enqueue(msg(c, "alice", "fresh"))

	msgs, drops := q.Drain("alice")
	assert.Equal(t, []string{"fresh"}, contents(msgs))
	require.Equal(t, []DropReason{DropExpired}, reasons(drops))
	assert.Equal(t, "stale", drops[0].Message.Content)
	assert.Equal(t, uint64(1), q.Stats().Dropped)
}

func TestQueue_ZeroRetentionNeverExpires(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now))
	q.Enqueue(msg(c, "alice", "kept"))
	c.Advance(1000 * time.Hour)

	assert.Empty(t, q.Sweep())
	assert.Equal(t, 1, q.Len("alice"))
}

func TestQueue_RecipientEviction(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now), WithLimits(Limits{MaxRecipients: 2}))

	q.Enqueue(msg(c, "alice", "1"))
	q.Enqueue(msg(c, "carol", "1"))
	// alice becomes most recently written, carol is now the oldest buffer.
	q.Enqueue(msg(c, "alice", "2"))

	res := q.Enqueue(msg(c, "dave", "1"))
	require.True(t, res.Accepted)
	assert.Equal(t, []DropReason{DropRecipientEvicted}, reasons(res.Dropped))
	assert.Equal(t, model.Identity("carol"), res.Dropped[0].Message.Recipient)

	assert.Equal(t, 2, q.Len("alice"))
	assert.Zero(t, q.Len("carol"))
	assert.Equal(t, 1, q.Len("dave"))
}

func TestQueue_Restore(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now), WithLimits(Limits{MaxPerRecipient: 3}))

	for _, s := range []string{"a", "b", "c"} {
		q.Enqueue(msg(c, "alice", s))
	}
	pending := drained(q, "alice")
	// Replay of "a" succeeded; a new message arrived meanwhile.
	q.Enqueue(msg(c, "alice", "d"))

	drops := q.Restore("alice", pending[1:])
	assert.Empty(t, drops)
	assert.Equal(t, []string{"b", "c", "d"}, contents(drained(q, "alice")))

	assert.Nil(t, q.Restore("alice", nil))
}

func TestQueue_RestoreTrimsOldest(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now), WithLimits(Limits{MaxPerRecipient: 2}))

	pending := []model.PendingMessage{msg(c, "alice", "a"), msg(c, "alice", "b")}
	q.Enqueue(msg(c, "alice", "c"))

	drops := q.Restore("alice", pending)
	assert.Equal(t, []DropReason{DropOverflow}, reasons(drops))
	assert.Equal(t, []string{"b", "c"}, contents(drained(q, "alice")))
}

func TestQueue_SetLimits(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now), WithLimits(Limits{MaxPerRecipient: 5, MaxRecipients: 3}))

	for _, id := range []model.Identity{"a", "b", "c"} {
		for i := range 4 {
			q.Enqueue(msg(c, id, fmt.Sprint(i)))
		}
	}

	drops := q.SetLimits(Limits{MaxPerRecipient: 2, MaxRecipients: 2, Overflow: RejectNew})
	// "a" is evicted whole (4), then "b" and "c" lose 2 each.
	assert.Len(t, drops, 8)
	assert.Equal(t, Limits{MaxPerRecipient: 2, MaxRecipients: 2, Overflow: RejectNew}, q.Limits())
	assert.Zero(t, q.Len("a"))
	assert.Equal(t, []string{"2", "3"}, contents(drained(q, "b")))

	st := q.Stats()
	assert.Equal(t, 1, st.Recipients)
	assert.Equal(t, 2, st.Messages)
	assert.Equal(t, uint64(8), st.Dropped)
}

func TestQueue_InvalidLimitsFallBack(t *testing.T) {
	q := NewQueue(WithLimits(Limits{MaxPerRecipient: -1, Retention: -time.Second, Overflow: "keep_all"}))
	assert.Equal(t, Limits{
		MaxPerRecipient: DefaultMaxPerRecipient,
		MaxRecipients:   DefaultMaxRecipients,
		Overflow:        DropOldest,
	}, q.Limits())
}

func TestQueue_ConcurrentEnqueueDrain(t *testing.T) {
	q := NewQueue(WithLimits(Limits{MaxPerRecipient: 10000}))
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				q.Enqueue(model.NewPendingMessage(model.Identity(fmt.Sprint(p)), "alice", fmt.Sprint(i), time.Now()))
			}
		}()
	}

	var got []model.PendingMessage
	done := make(chan struct{})
	go func() {
		defer close(done)
		for len(got) < producers*perProducer {
			got = append(got, drained(q, "alice")...)
		}
	}()
	wg.Wait()
	<-done

	// Nothing lost, nothing duplicated, per-sender order kept.
	assert.Len(t, got, producers*perProducer)
	last := map[model.Identity]int{}
	for _, m := range got {
		var n int
		_, err := fmt.Sscan(m.Content, &n)
		require.NoError(t, err)
		if prev, ok := last[m.Sender]; ok {
			assert.Greater(t, n, prev)
		}
		last[m.Sender] = n
	}
}

func TestQueue_Janitor(t *testing.T) {
	c := newClock()
	q := NewQueue(WithClock(c.Now), WithLimits(Limits{Retention: time.Minute}))
	q.Enqueue(msg(c, "alice", "stale"))
	c.Advance(time.Hour)

	got := make(chan []Drop, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, 5*time.Millisecond, func(d []Drop) {
		select {
		case got <- d:
		default:
		}
	})

	select {
	case drops := <-got:
		assert.Equal(t, []DropReason{DropExpired}, reasons(drops))
	case <-time.After(2 * time.Second):
		t.Fatal("janitor never swept")
	}
}

func TestDropCounter_NilSafe(t *testing.T) {
	var c *DropCounter
	assert.NotPanics(t, func() { c.Observe([]Drop{{Reason: DropExpired}}) })
	assert.NotPanics(t, func() { NewDropCounter().Observe([]Drop{{Reason: DropOverflow}}) })
}
