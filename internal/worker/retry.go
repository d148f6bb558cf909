package worker

import "time"

// RetryPolicy bounds how often a key is attempted and how long a failed
// attempt waits before it is visible again.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Exhausted reports whether the attempt that just failed, on top of the
// attempts already recorded, uses up the budget.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts+1 >= p.MaxRetries
}

// Backoff is BaseDelay * 2^attempts, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
