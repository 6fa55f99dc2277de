package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitExceededError is returned when the request limit is exceeded.
type RateLimitExceededError struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return "rate limit exceeded"
}

// TokenBucketRateLimiter implements the token bucket algorithm for
// limiting model request rates.
type TokenBucketRateLimiter struct {
	capacity     int           // Maximum number of tokens
	tokens       int           // Current number of tokens
	refillRate   time.Duration // Interval between refills
	refillAmount int           // Tokens added per refill
	lastRefill   time.Time
	mu           sync.Mutex
	metrics      *RateLimitMetrics
}

// RateLimitMetrics holds rate limiting counters.
type RateLimitMetrics struct {
	TotalRequests    int64
	AllowedRequests  int64
	RejectedRequests int64
}

// NewTokenBucketRateLimiter creates a new rate limiter. The bucket starts
// full at capacity and gains refillAmount tokens every refillInterval.
func NewTokenBucketRateLimiter(capacity int, refillInterval time.Duration, refillAmount int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		capacity:     capacity,
		tokens:       capacity,
		refillRate:   refillInterval,
		refillAmount: refillAmount,
		lastRefill:   time.Now(),
		metrics:      &RateLimitMetrics{},
	}
}

// TryAcquire attempts to take a token. Returns true if a token was
// available; otherwise false and the wait until the next refill.
func (r *TokenBucketRateLimiter) TryAcquire() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.TotalRequests++

	now := time.Now()
	elapsed := now.Sub(r.lastRefill)

	if elapsed >= r.refillRate {
		intervals := int(elapsed / r.refillRate)

		tokensToAdd := intervals * r.refillAmount
		if r.tokens+tokensToAdd > r.capacity {
			r.tokens = r.capacity
		} else {
			r.tokens += tokensToAdd
		}

		// Keep the remainder so partial intervals are not lost.
		r.lastRefill = now.Add(-elapsed % r.refillRate)
	}

	if r.tokens > 0 {
		r.tokens--
		r.metrics.AllowedRequests++
		return true, 0
	}

	timeToNextRefill := r.refillRate - (now.Sub(r.lastRefill) % r.refillRate)
	r.metrics.RejectedRequests++

	return false, timeToNextRefill
}

// Acquire blocks until a token is available.
func (r *TokenBucketRateLimiter) Acquire() {
	for {
		allowed, waitTime := r.TryAcquire()
		if allowed {
			return
		}
		time.Sleep(waitTime)
	}
}

// AcquireCtx blocks until a token is available or the context is done.
func (r *TokenBucketRateLimiter) AcquireCtx(ctx context.Context) error {
	for {
		allowed, waitTime := r.TryAcquire()
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetMetrics returns a snapshot of the current counters.
func (r *TokenBucketRateLimiter) GetMetrics() RateLimitMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimitMetrics{
		TotalRequests:    r.metrics.TotalRequests,
		AllowedRequests:  r.metrics.AllowedRequests,
		RejectedRequests: r.metrics.RejectedRequests,
	}
}

// Reset restores the limiter to its initial state.
func (r *TokenBucketRateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens = r.capacity
	r.lastRefill = time.Now()
	r.metrics = &RateLimitMetrics{}
}

// GetAvailableTokens returns the current number of available tokens.
func (r *TokenBucketRateLimiter) GetAvailableTokens() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tokens
}
