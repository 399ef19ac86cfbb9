package webhooks

import (
	"math"
	"time"
)

// RetryPolicy implements exponential backoff for failed deliveries
type RetryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

// NewRetryPolicy creates a retry policy. Zero values fall back to defaults.
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	return &RetryPolicy{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxDelay:     5 * time.Minute,
		multiplier:   2.0,
	}
}

// ShouldRetry reports whether another attempt is allowed
func (p *RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.maxAttempts
}

// NextRetryDelay returns the backoff delay after the given attempt count
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.initialDelay
	}
	delay := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempts-1))
	if delay > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(delay)
}

// NextRetryTime returns when the next attempt should run
func (p *RetryPolicy) NextRetryTime(attempts int) time.Time {
	return time.Now().Add(p.NextRetryDelay(attempts))
}
