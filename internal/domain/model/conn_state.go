package model

type ConnState int32

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	ConnConnecting ConnState = iota + 1
	ConnConnected
	ConnDisconnected
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// CanTransition enforces Connecting -> Connected -> Disconnected, with Disconnected terminal.
// A connection that never joined may go straight from Connecting to Disconnected.
func (s ConnState) CanTransition(next ConnState) bool {
	switch s {
	case ConnConnecting:
		return next == ConnConnected || next == ConnDisconnected
	case ConnConnected:
		return next == ConnDisconnected
	default:
		return false
	}
}
