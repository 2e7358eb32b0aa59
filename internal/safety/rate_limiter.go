package safety

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting for venue API calls
type RateLimiter struct {
	capacity   int       // maximum number of tokens
	tokens     int       // current number of tokens
	refillRate int       // tokens added per second
	lastRefill time.Time // last time tokens were added
	mutex      sync.Mutex
	name       string
}

// NewRateLimiter creates a rate limiter for the named venue
func NewRateLimiter(name string, capacity, refillRate int) *RateLimiter {
	return &RateLimiter{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		name:       name,
	}
}

// Allow checks if one call is allowed under the rate limit
func (rl *RateLimiter) Allow() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refillTokens()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a call is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.waitInterval()):
		}
	}
}

// refillTokens adds tokens based on elapsed time; caller holds the mutex
func (rl *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)

	if elapsed < time.Second {
		return
	}

	tokensToAdd := int(elapsed.Seconds()) * rl.refillRate
	if tokensToAdd > 0 {
		rl.tokens += tokensToAdd
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastRefill = now
	}
}

func (rl *RateLimiter) waitInterval() time.Duration {
	if rl.refillRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(rl.refillRate)
}
