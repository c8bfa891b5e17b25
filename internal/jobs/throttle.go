package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Throttle enforces a minimum delay between consecutive dispatches. It is
// per-process and best-effort.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a throttle admitting one dispatch per minDelay. A
// non-positive delay disables it.
func NewThrottle(minDelay time.Duration) *Throttle {
	if minDelay <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(minDelay), 1)}
}

// Wait blocks until the next dispatch is allowed or ctx ends.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "jobs: throttle wait")
	}
	return nil
}
