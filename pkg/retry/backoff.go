package retry

import (
	"context"
	"math"
	"time"
)

// Backoff returns the wait after the n-th retryable failure (n >= 1):
// base·2^(n-1) plus jitter below half of that step, capped at MaxBackoff.
// Delays never decrease as n grows.
func (c *Controller) Backoff(n int) time.Duration {
	base := c.cfg.BaseBackoff
	if base <= 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}

	limit := c.cfg.MaxBackoff
	step := base
	for i := 1; i < n; i++ {
		if limit > 0 && step >= limit {
			break
		}
		// Stop doubling before overflow when uncapped.
		if step > math.MaxInt64/2 {
			break
		}
		step *= 2
	}

	delay := step
	if half := int64(step / 2); half > 0 {
		delay += time.Duration(c.jitter(half))
		if delay < step {
			delay = step
		}
	}
	if limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
