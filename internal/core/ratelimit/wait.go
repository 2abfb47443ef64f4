package ratelimit

import (
	"context"
	"time"
)

// DefaultPollInterval is how often a blocked acquire re-checks its gate.
const DefaultPollInterval = 100 * time.Millisecond

// Clock supplies time to the admission primitives. Tests replace it with a
// fake that advances on Sleep.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// poll calls try until it reports success, the timeout elapses, or ctx ends.
// A non-positive timeout waits indefinitely. It returns the time spent waiting
// and whether try succeeded.
func poll(ctx context.Context, clock Clock, interval, timeout time.Duration, try func(now time.Time) bool) (time.Duration, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if clock == nil {
		clock = SystemClock
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := clock.Now()
	for {
		now := clock.Now()
		if try(now) {
			return now.Sub(start), true, nil
		}

		waited := now.Sub(start)
		sleep := interval
		if timeout > 0 {
			remaining := timeout - waited
			if remaining <= 0 {
				return waited, false, nil
			}
			if remaining < sleep {
				sleep = remaining
			}
		}

		if err := clock.Sleep(ctx, sleep); err != nil {
			return clock.Now().Sub(start), false, err
		}
	}
}
