// Package retry holds the backoff policy shared by the remote clients.
package retry

import (
	"math/rand"
	"time"
)

// Policy computes retry delays: exponential growth from a base delay with
// random jitter added to avoid thundering-herd resubmission. It is a pure
// policy object, independent of any transport.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Jitter returns a random duration in [0, max). Overridable for tests;
	// nil uses math/rand.
	Jitter func(max time.Duration) time.Duration
}

// DefaultPolicy returns the standard retry policy: 3 attempts, 500ms base.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// Delay returns how long to wait before the given attempt (0-based).
// Attempt 0 has no delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := p.BaseDelay << uint(attempt-1)
	jitter := p.Jitter
	if jitter == nil {
		jitter = randomJitter
	}
	return d + jitter(p.BaseDelay)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
