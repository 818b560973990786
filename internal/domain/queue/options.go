package queue

import "time"

// Option defines a functional configuration type for the Queue.
type Option func(*Queue)

// WithLimits sets the bounds. Zero or invalid fields fall back to defaults.
func WithLimits(l Limits) Option {
	return func(q *Queue) {
		q.limits = l.normalize()
	}
}

// WithClock injects the time source used for retention checks.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}
