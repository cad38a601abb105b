// Package retry holds the stage-agnostic backoff policy. The policy is a
// pure function of the attempt count; persisting next_retry_at and actually
// re-dispatching is the state machine's job.
package retry

import "time"

const (
	// DefaultBase produces 60s/120s/240s for attempts 0/1/2.
	DefaultBase = 60 * time.Second
	// DefaultMaxAttempts dead-letters an item after three confirmed failures.
	DefaultMaxAttempts = 3
)

// Policy maps attempt counts to delays and terminal decisions.
type Policy struct {
	Base        time.Duration
	MaxAttempts int
}

// NewPolicy builds a policy, substituting defaults for non-positive values.
func NewPolicy(base time.Duration, maxAttempts int) Policy {
	if base <= 0 {
		base = DefaultBase
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return Policy{Base: base, MaxAttempts: maxAttempts}
}

// Delay returns the backoff before retrying after the given zero-based
// attempt: base * 2^attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	// Cap the shift so pathological attempt counts cannot overflow.
	if attempt > 16 {
		attempt = 16
	}
	return base << uint(attempt)
}

// ShouldRetry reports whether another attempt is allowed after `attempt`
// attempts have already failed.
func (p Policy) ShouldRetry(attempt int) bool {
	max := p.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return attempt < max
}

// NextRetryAt computes the wall-clock time of the next attempt given the
// just-failed zero-based attempt number.
func (p Policy) NextRetryAt(now time.Time, attempt int) time.Time {
	return now.Add(p.Delay(attempt))
}
