package model

// ConnectedPayload represents the data sent to the client once its join was accepted.
type ConnectedPayload struct {
	ConnectionID  string `json:"connectionId"`
	Identity      string `json:"identity"`
	ServerVersion string `json:"serverVersion"`
}

// ServerVersion is reported in the handshake. Overridden at startup from build info.
var ServerVersion = "0.0.0"
