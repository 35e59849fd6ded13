// Package ratelimit throttles outgoing requests to the Mirador Core API.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	rate       float64
	bucketSize float64
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter with the specified rate (tokens per second)
// and bucket size. It returns nil when rate is not positive, which disables limiting.
func NewRateLimiter(rate float64, bucketSize float64) *RateLimiter {
	if rate <= 0 {
		return nil
	}
	if bucketSize < 1 {
		bucketSize = 1
	}
	return &RateLimiter{
		rate:       rate,
		bucketSize: bucketSize,
		tokens:     bucketSize,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
// Tokens are reserved under the lock so concurrent callers queue up in order
// without holding the lock while sleeping.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens = min(rl.bucketSize, rl.tokens+elapsed*rl.rate)
	rl.lastRefill = now
	rl.tokens--
	deficit := -rl.tokens
	rl.mu.Unlock()

	if deficit <= 0 {
		return nil
	}

	waitTime := time.Duration(deficit / rl.rate * float64(time.Second))
	timer := time.NewTimer(waitTime)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		rl.release()
		return ctx.Err()
	}
}

// release hands back a reserved token that was never used.
func (rl *RateLimiter) release() {
	rl.mu.Lock()
	rl.tokens = min(rl.bucketSize, rl.tokens+1)
	rl.mu.Unlock()
}
