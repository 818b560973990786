// Package queue implements the store-and-forward buffer for recipients that have no live connection.
//
// Every recipient owns an ordered buffer. The queue is bounded three ways: a
// per-recipient length (overflow policy drop_oldest or reject_new), a retention
// window after which messages expire, and a cap on the number of recipient
// buffers (least recently written buffer is evicted whole). One mutex guards the
// whole structure, so Drain observes either none or all of a concurrent Enqueue.
package queue

import (
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

type OverflowPolicy string

const (
	DropOldest OverflowPolicy = "drop_oldest"
	RejectNew  OverflowPolicy = "reject_new"
)

func (p OverflowPolicy) Valid() bool {
	return p == DropOldest || p == RejectNew
}

type DropReason string

const (
	DropOverflow         DropReason = "overflow"
	DropRejected         DropReason = "rejected"
	DropExpired          DropReason = "expired"
	DropRecipientEvicted DropReason = "recipient_evicted"
)

// Drop records a message that left the queue without being delivered.
type Drop struct {
	Message model.PendingMessage
	Reason  DropReason
}

type EnqueueResult struct {
	// Accepted is false only under the reject_new policy with a full buffer.
	Accepted bool
	Dropped  []Drop
}

type Limits struct {
	MaxPerRecipient int
	MaxRecipients   int
	// Retention of zero keeps messages until they are drained or pushed out.
	Retention time.Duration
	Overflow  OverflowPolicy
}

const (
	DefaultMaxPerRecipient = 100
	DefaultMaxRecipients   = 10000
)

func (l Limits) normalize() Limits {
	if l.MaxPerRecipient <= 0 {
		l.MaxPerRecipient = DefaultMaxPerRecipient
	}
	if l.MaxRecipients <= 0 {
		l.MaxRecipients = DefaultMaxRecipients
	}
	if l.Retention < 0 {
		l.Retention = 0
	}
	if !l.Overflow.Valid() {
		l.Overflow = DropOldest
	}
	return l
}

type Stats struct {
	Recipients int
	Messages   int
	Dropped    uint64
}

// Queuer is the contract consumed by the relay and the lifecycle controller.
type Queuer interface {
	Enqueue(msg model.PendingMessage) EnqueueResult
	// Drain atomically removes and returns the recipient's buffer in enqueue order.
	// Messages past retention are not returned; they come back as expired drops.
	Drain(recipient model.Identity) ([]model.PendingMessage, []Drop)
	// Restore puts undelivered messages back in front of the recipient's buffer.
	Restore(recipient model.Identity, msgs []model.PendingMessage) []Drop
	Len(recipient model.Identity) int
	Sweep() []Drop
	Limits() Limits
	SetLimits(l Limits) []Drop
	Stats() Stats
}

var _ Queuer = (*Queue)(nil)

type buffer struct {
	msgs []model.PendingMessage
}

type Queue struct {
	mu      sync.Mutex
	buffers *lru.Cache[model.Identity, *buffer]
	limits  Limits
	now     func() time.Time
	total   int
	dropped uint64
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		limits: Limits{}.normalize(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	// [MEMORY_MANAGEMENT] Recency is "last enqueue"; the oldest buffer is the first to go.
	// Size is always positive after normalize, so construction can not fail.
	q.buffers, _ = lru.New[model.Identity, *buffer](q.limits.MaxRecipients)
	return q
}

func (q *Queue) Enqueue(msg model.PendingMessage) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res EnqueueResult
	now := q.now()

	buf, ok := q.buffers.Get(msg.Recipient)
	if ok {
		res.Dropped = append(res.Dropped, q.expireLocked(buf, now)...)
	} else {
		if q.buffers.Len() >= q.limits.MaxRecipients {
			res.Dropped = append(res.Dropped, q.evictOldestLocked()...)
		}
		buf = &buffer{}
		q.buffers.Add(msg.Recipient, buf)
	}

	if over := len(buf.msgs) - q.limits.MaxPerRecipient + 1; over > 0 {
		if q.limits.Overflow == RejectNew {
			res.Dropped = append(res.Dropped, Drop{Message: msg, Reason: DropRejected})
			q.dropped += uint64(len(res.Dropped))
			return res
		}
		res.Dropped = append(res.Dropped, q.trimFrontLocked(buf, over, DropOverflow)...)
	}

	buf.msgs = append(buf.msgs, msg)
	q.total++
	res.Accepted = true
	q.dropped += uint64(len(res.Dropped))

	return res
}

func (q *Queue) Drain(recipient model.Identity) ([]model.PendingMessage, []Drop) {
	q.mu.Lock()
	defer q.mu.Unlock()

	buf, ok := q.buffers.Peek(recipient)
	if !ok {
		return nil, nil
	}
	q.buffers.Remove(recipient)
	q.total -= len(buf.msgs)

	now := q.now()
	var drops []Drop
	out := make([]model.PendingMessage, 0, len(buf.msgs))
	for _, m := range buf.msgs {
		if m.ExpiredAt(now, q.limits.Retention) {
			drops = append(drops, Drop{Message: m, Reason: DropExpired})
			continue
		}
		out = append(out, m)
	}
	q.dropped += uint64(len(drops))

	return out, drops
}

func (q *Queue) Restore(recipient model.Identity, msgs []model.PendingMessage) []Drop {
	if len(msgs) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var drops []Drop
	buf, ok := q.buffers.Get(recipient)
	if !ok {
		if q.buffers.Len() >= q.limits.MaxRecipients {
			drops = append(drops, q.evictOldestLocked()...)
		}
		buf = &buffer{}
		q.buffers.Add(recipient, buf)
	}

	buf.msgs = append(slices.Clone(msgs), buf.msgs...)
	q.total += len(msgs)

	if over := len(buf.msgs) - q.limits.MaxPerRecipient; over > 0 {
		drops = append(drops, q.trimFrontLocked(buf, over, DropOverflow)...)
	}
	q.dropped += uint64(len(drops))

	return drops
}

func (q *Queue) Len(recipient model.Identity) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if buf, ok := q.buffers.Peek(recipient); ok {
		return len(buf.msgs)
	}
	return 0
}

// Sweep expires old messages across all recipients and drops empty buffers.
func (q *Queue) Sweep() []Drop {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limits.Retention <= 0 {
		return nil
	}

	var drops []Drop
	now := q.now()
	for _, recipient := range q.buffers.Keys() {
		buf, ok := q.buffers.Peek(recipient)
		if !ok {
			continue
		}
		drops = append(drops, q.expireLocked(buf, now)...)
		if len(buf.msgs) == 0 {
			q.buffers.Remove(recipient)
		}
	}
	q.dropped += uint64(len(drops))

	return drops
}

func (q *Queue) Limits() Limits {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limits
}

// SetLimits applies new bounds at runtime and trims whatever no longer fits.
func (q *Queue) SetLimits(l Limits) []Drop {
	l = l.normalize()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.limits = l

	var drops []Drop
	for q.buffers.Len() > l.MaxRecipients {
		drops = append(drops, q.evictOldestLocked()...)
	}
	q.buffers.Resize(l.MaxRecipients)

	for _, recipient := range q.buffers.Keys() {
		buf, _ := q.buffers.Peek(recipient)
		if over := len(buf.msgs) - l.MaxPerRecipient; over > 0 {
			drops = append(drops, q.trimFrontLocked(buf, over, DropOverflow)...)
		}
	}
	q.dropped += uint64(len(drops))

	return drops
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Recipients: q.buffers.Len(),
		Messages:   q.total,
		Dropped:    q.dropped,
	}
}

// --- helpers, q.mu must be held ---

func (q *Queue) expireLocked(buf *buffer, now time.Time) []Drop {
	if q.limits.Retention <= 0 {
		return nil
	}
	// Buffers are in enqueue order, so expired messages form a prefix.
	n := 0
	for n < len(buf.msgs) && buf.msgs[n].ExpiredAt(now, q.limits.Retention) {
		n++
	}
	return q.trimFrontLocked(buf, n, DropExpired)
}

func (q *Queue) trimFrontLocked(buf *buffer, n int, reason DropReason) []Drop {
	if n <= 0 {
		return nil
	}
	drops := make([]Drop, 0, n)
	for _, m := range buf.msgs[:n] {
		drops = append(drops, Drop{Message: m, Reason: reason})
	}
	buf.msgs = slices.Delete(buf.msgs, 0, n)
	q.total -= n
	return drops
}

func (q *Queue) evictOldestLocked() []Drop {
	_, buf, ok := q.buffers.RemoveOldest()
	if !ok {
		return nil
	}
	return q.trimFrontLocked(buf, len(buf.msgs), DropRecipientEvicted)
}
