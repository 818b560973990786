package queue

import (
	"context"
	"time"
)

// Run sweeps expired messages every interval until ctx is done.
// onDrop receives every non-empty sweep result.
func (q *Queue) Run(ctx context.Context, interval time.Duration, onDrop func([]Drop)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if drops := q.Sweep(); len(drops) > 0 && onDrop != nil {
				onDrop(drops)
			}
		}
	}
}
