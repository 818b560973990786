package dto

import "github.com/webitel/im-presence-service/internal/domain/model"

// SendMessage is the relay request shared by the websocket frame, the HTTP
// endpoint and the bus consumer. SenderID may be omitted where the transport
// already knows the sender. Timestamp is accepted for compatibility and
// ignored: the server clock is authoritative.
type SendMessage struct {
	SenderID   string `json:"senderId" validate:"omitempty,identity"`
	ReceiverID string `json:"receiverId" validate:"required,identity"`
	Content    string `json:"content" validate:"required"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

func (d *SendMessage) Sender() model.Identity    { return model.ParseIdentity(d.SenderID) }
func (d *SendMessage) Recipient() model.Identity { return model.ParseIdentity(d.ReceiverID) }

// SendMessageResult is returned by the HTTP relay endpoint.
type SendMessageResult struct {
	MessageID string `json:"messageId"`
	Outcome   string `json:"outcome"`
	Handles   int    `json:"handles"`
	Timestamp int64  `json:"timestamp"`
}
