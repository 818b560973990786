package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (REGISTRY/BROADCASTER/TRANSPORT)
// One Connector is one physical connection; its ID is the connection handle.
type Connector interface {
	GetID() uuid.UUID
	GetIdentity() model.Identity
	GetMetadata() ConnectMetadata
	GetCreatedAt() time.Time
	Send(ev event.Eventer, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan event.Eventer
	Done() <-chan struct{}
	Dropped() uint64
	Close() // Terminate connection and release resources
}

// [METADATA] EXPORTED FOR TRANSPORT AND ANALYTICS LAYERS
type ConnectMetadata struct {
	Platform  string
	RemoteIP  string
	UserAgent string
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id           uuid.UUID
	identity     model.Identity
	metadata     ConnectMetadata
	createdAt    time.Time
	ctx          context.Context
	cancelFn     context.CancelFunc
	sendCh       chan event.Eventer
	closeOnce    sync.Once
	droppedCount atomic.Uint64
}

// NewConnector creates the per-connection outbound buffer. The send channel is never
// closed: consumers select on Done() so that a late Send can not panic.
func NewConnector(ctx context.Context, identity model.Identity, bufferSize int, meta ConnectMetadata) Connector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	childCtx, cancel := context.WithCancel(ctx)

	return &connect{
		id:        uuid.New(),
		identity:  identity,
		metadata:  meta,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan event.Eventer, bufferSize),
	}
}

// --- IMPLEMENTATION OF CONNECTOR INTERFACE ---

func (c *connect) GetID() uuid.UUID             { return c.id }
func (c *connect) GetIdentity() model.Identity  { return c.identity }
func (c *connect) GetMetadata() ConnectMetadata { return c.metadata }
func (c *connect) GetCreatedAt() time.Time      { return c.createdAt }
func (c *connect) Recv() <-chan event.Eventer   { return c.sendCh }
func (c *connect) Done() <-chan struct{}        { return c.ctx.Done() }
func (c *connect) Dropped() uint64              { return c.droppedCount.Load() }

// Send attempts to push an event into the channel without ever reordering it.
// Low priority events are dropped as soon as the buffer is full; everything else
// waits up to timeout for room and is dropped after that. Buffered events are never evicted.
func (c *connect) Send(ev event.Eventer, timeout time.Duration) bool {
	// 1. [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	if c.ctx.Err() != nil {
		return false
	}

	// 2. [FAST_PATH]
	select {
	case c.sendCh <- ev:
		return true
	default:
	}

	// 3. [BACKPRESSURE] Low priority traffic never waits behind a slow consumer.
	if ev.GetPriority() <= event.PriorityLow {
		c.droppedCount.Add(1)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false

	// 4. [PRIMARY_DELIVERY] Wait up to 'timeout' for space, smoothing out transient jitter.
	case c.sendCh <- ev:
		return true

	// 5. [SLOW_CONSUMER] The incoming event is the one that goes.
	case <-timer.C:
		c.droppedCount.Add(1)
		return false
	}
}

// Close terminates the session. It is idempotent: the Hub (shutdown), the
// lifecycle controller and the transport handler may all call it.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
	})
}
