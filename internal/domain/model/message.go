package model

import (
	"time"

	"github.com/google/uuid"
)

// [PENDING_MESSAGE] ONE RELAYED MESSAGE, EITHER IN FLIGHT OR PARKED IN THE OFFLINE QUEUE
type PendingMessage struct {
	ID        uuid.UUID
	Sender    Identity
	Recipient Identity
	Content   string
	// CreatedAt is assigned by the server when the relay attempt runs.
	CreatedAt time.Time
}

func NewPendingMessage(sender, recipient Identity, content string, now time.Time) PendingMessage {
	return PendingMessage{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		CreatedAt: now,
	}
}

// ExpiredAt reports whether the message is older than the retention window.
// A zero retention never expires.
func (m PendingMessage) ExpiredAt(now time.Time, retention time.Duration) bool {
	if retention <= 0 {
		return false
	}
	return now.Sub(m.CreatedAt) > retention
}
