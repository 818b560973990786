package presence

import "time"

type Option func(*Broadcaster)

func WithSendTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

// WithParallelism caps the number of concurrent sends per announcement.
func WithParallelism(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.parallelism = n
		}
	}
}
