package webhooks

import (
	"sync"
	"time"
)

// RateLimiter applies a token bucket per webhook so one slow or noisy
// endpoint cannot monopolize delivery capacity.
type RateLimiter struct {
	mu           sync.Mutex
	buckets      map[string]*tokenBucket
	maxTokens    int
	refillPeriod time.Duration
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows maxRequests per period per webhook
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:      make(map[string]*tokenBucket),
		maxTokens:    maxRequests,
		refillPeriod: period,
	}
}

// Allow reports whether a delivery to the webhook may proceed now
func (rl *RateLimiter) Allow(webhookID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets[webhookID]
	if !ok {
		bucket = &tokenBucket{tokens: rl.maxTokens, lastRefill: time.Now()}
		rl.buckets[webhookID] = bucket
	}

	elapsed := time.Since(bucket.lastRefill)
	if elapsed >= rl.refillPeriod {
		periods := int(elapsed / rl.refillPeriod)
		bucket.tokens += periods
		if bucket.tokens > rl.maxTokens {
			bucket.tokens = rl.maxTokens
		}
		bucket.lastRefill = bucket.lastRefill.Add(time.Duration(periods) * rl.refillPeriod)
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// Reset clears the bucket for a webhook
func (rl *RateLimiter) Reset(webhookID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, webhookID)
}
