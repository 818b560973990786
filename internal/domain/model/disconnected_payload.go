package model

const (
	ReasonServerShutdown = "server_shutdown"
	ReasonSessionClosed  = "session_closed_by_server"
)

// DisconnectedPayload represents the notification sent before the server closes the connection.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// SupersededPayload tells an older connection that a newer one took over its identity.
// The older connection stays open and keeps receiving presence updates, but no messages.
type SupersededPayload struct {
	Identity     string `json:"identity"`
	ConnectionID string `json:"connectionId"`
}
