package model

// OnlineUsersPayload is the full presence set. Revision grows with every announcement,
// so a client can ignore a set older than the one it already holds.
type OnlineUsersPayload struct {
	Revision uint64   `json:"revision"`
	Users    []string `json:"users"`
}

// ReceivedMessagePayload is one relayed message as seen by the recipient.
type ReceivedMessagePayload struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// PresenceChangedPayload is exported to the message bus when an identity joins or leaves the presence set.
type PresenceChangedPayload struct {
	Identity string `json:"identity"`
	Online   bool   `json:"online"`
}
