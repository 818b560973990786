package registry

import "time"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithSessionPolicy selects last-connect-wins (default) or multi-session bookkeeping.
// Unknown values keep the default.
func WithSessionPolicy(p SessionPolicy) Option {
	return func(h *Hub) {
		if p.Valid() {
			h.config.policy = p
		}
	}
}

// WithShutdownTimeout bounds how long Shutdown waits to enqueue the
// farewell event on a saturated connection.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.shutdownTimeout = d
	}
}
