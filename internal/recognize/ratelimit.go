package recognize

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// IntervalLimiter enforces a minimum spacing between calls to a provider with
// a per-second quota. rate.Limiter is internally synchronized, so one limiter
// may be shared by concurrently running pipelines without corrupting timing.
type IntervalLimiter struct {
	lim *rate.Limiter
}

// NewIntervalLimiter returns a limiter granting at most one call per interval.
// A non-positive interval defaults to one second (QPS 1).
func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	if interval <= 0 {
		interval = time.Second
	}
	return &IntervalLimiter{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Acquire blocks until at least the configured interval has elapsed since the
// previous granted call, then records the new call time.
func (l *IntervalLimiter) Acquire(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
