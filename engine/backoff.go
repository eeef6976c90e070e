package engine

import "time"

const DEFAULT_BACKOFF_BASE = 30 * time.Second
const DEFAULT_BACKOFF_MAX = 1 * time.Hour

// Backoff computes the exponential retry delay base·2^(n-1) capped at
// max. It is monotonically non-decreasing in the retry count.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: DEFAULT_BACKOFF_BASE, Max: DEFAULT_BACKOFF_MAX}
}

func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := b.Base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= b.Max {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}
