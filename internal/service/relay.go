package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/queue"
	"github.com/webitel/im-presence-service/internal/domain/registry"
)

// Outcome is the single result of one relay attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
	// OutcomeRejected: the recipient was offline and its full buffer refused the message (reject_new).
	OutcomeRejected Outcome = "rejected"
	// OutcomeLost: the recipient was online but no handle accepted the message.
	OutcomeLost Outcome = "lost"
)

type RelayResult struct {
	MessageID uuid.UUID
	Outcome   Outcome
	// Handles is the number of live connections that accepted the message.
	Handles int
	// CreatedAt is the server-assigned timestamp.
	CreatedAt time.Time
}

// Relayer routes one message either to the recipient's live connection(s) or to the offline queue.
type Relayer interface {
	Relay(ctx context.Context, sender, recipient model.Identity, content string) (RelayResult, error)
}

var _ Relayer = (*RelayService)(nil)

type RelayService struct {
	hub    registry.Hubber
	queue  queue.Queuer
	locks  *IdentityLocks
	logger *slog.Logger
	now    func() time.Time
	onDrop func([]queue.Drop)

	sendTimeout        time.Duration
	maxContentBytes    int
	queueOnSendFailure bool
}

type RelayParams struct {
	SendTimeout        time.Duration
	MaxContentBytes    int
	QueueOnSendFailure bool
	// OnDrop observes messages the queue discarded while enqueueing.
	OnDrop func([]queue.Drop)
}

func NewRelayService(hub registry.Hubber, q queue.Queuer, locks *IdentityLocks, logger *slog.Logger, params RelayParams) *RelayService {
	return &RelayService{
		hub:                hub,
		queue:              q,
		locks:              locks,
		logger:             logger,
		now:                time.Now,
		onDrop:             params.OnDrop,
		sendTimeout:        params.SendTimeout,
		maxContentBytes:    params.MaxContentBytes,
		queueOnSendFailure: params.QueueOnSendFailure,
	}
}

func (s *RelayService) Relay(ctx context.Context, sender, recipient model.Identity, content string) (RelayResult, error) {
	if sender.IsZero() || recipient.IsZero() {
		return RelayResult{}, ErrEmptyIdentity
	}
	if content == "" {
		return RelayResult{}, fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if s.maxContentBytes > 0 && len(content) > s.maxContentBytes {
		return RelayResult{}, fmt.Errorf("%w: content exceeds %d bytes", ErrInvalidMessage, s.maxContentBytes)
	}

	// [SERVER_CLOCK] The client's timestamp is never trusted.
	msg := model.NewPendingMessage(sender, recipient, content, s.now())
	res := RelayResult{MessageID: msg.ID, CreatedAt: msg.CreatedAt}

	// Lookup and the resulting send/enqueue happen under the recipient's lock,
	// so a concurrent connect can not drain between our miss and our enqueue.
	unlock := s.locks.lock(recipient)
	defer unlock()

	handles := s.hub.Lookup(recipient)
	if len(handles) == 0 {
		res.Outcome = s.enqueue(msg)
		return res, nil
	}

	// One event for every handle: the wire encoding is computed once.
	ev := event.NewMessageEvent(msg)
	for _, h := range handles {
		if h.Send(ev, s.sendTimeout) {
			res.Handles++
		}
	}
	if res.Handles > 0 {
		res.Outcome = OutcomeDelivered
		return res, nil
	}

	if s.queueOnSendFailure {
		// [FALLBACK] The recipient may see this message twice if the transport did deliver it.
		s.logger.Warn("RELAY_LIVE_SEND_FAILED_QUEUED",
			"message_id", msg.ID,
			"recipient", recipient,
			"handles", len(handles),
		)
		res.Outcome = s.enqueue(msg)
		return res, nil
	}

	s.logger.Warn("RELAY_LIVE_SEND_LOST",
		"message_id", msg.ID,
		"sender", sender,
		"recipient", recipient,
		"handles", len(handles),
	)
	res.Outcome = OutcomeLost
	return res, nil
}

func (s *RelayService) enqueue(msg model.PendingMessage) Outcome {
	res := s.queue.Enqueue(msg)

	for _, d := range res.Dropped {
		if d.Reason == queue.DropExpired {
			s.logger.Debug("OFFLINE_MESSAGE_EXPIRED", "recipient", d.Message.Recipient, "message_id", d.Message.ID)
			continue
		}
		s.logger.Warn("OFFLINE_QUEUE_OVERFLOW",
			"recipient", d.Message.Recipient,
			"message_id", d.Message.ID,
			"reason", d.Reason,
		)
	}
	if s.onDrop != nil && len(res.Dropped) > 0 {
		s.onDrop(res.Dropped)
	}

	if !res.Accepted {
		return OutcomeRejected
	}
	return OutcomeQueued
}
