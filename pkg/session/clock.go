package session

import (
	"context"
	"time"
)

// Clock abstracts time and blocking waits so the same core logic can run
// under a real thread (blocking sleep) or a cooperative scheduler without
// modification. Retry backoff and inter-attempt delays go through Sleep,
// which must honor context cancellation.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the default Clock backed by the wall clock.
var SystemClock Clock = systemClock{}
