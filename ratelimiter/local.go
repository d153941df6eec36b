package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrMaxWaitExceeded is returned by WaitAndConsume when the required wait is longer than allowed.
var ErrMaxWaitExceeded = errors.New("rate limit wait exceeds max wait")

// RateLimiter combines a per-minute token budget with a per-minute request budget.
// A nil bucket is unlimited.
type RateLimiter struct {
	TokensBucket   *TokenBucket
	RequestsBucket *TokenBucket

	mu sync.Mutex
}

var _ Limiter = (*RateLimiter)(nil)

// New creates a limiter refilled every minute. A limit of zero disables that budget.
func New(tokensPerMinute, requestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{}
	if tokensPerMinute > 0 {
		rl.TokensBucket = NewTokenBucket(tokensPerMinute, tokensPerMinute, time.Minute)
	}
	if requestsPerMinute > 0 {
		rl.RequestsBucket = NewTokenBucket(requestsPerMinute, requestsPerMinute, time.Minute)
	}
	return rl
}

// TryConsume consumes numTokens and one request only if both budgets allow it.
func (rl *RateLimiter) TryConsume(numTokens int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.TokensBucket.HasCapacity(numTokens) || !rl.RequestsBucket.HasCapacity(1) {
		return false
	}
	rl.TokensBucket.Consume(numTokens)
	rl.RequestsBucket.Consume(1)
	return true
}

// TimeUntilAvailable returns the longer of the two budgets' waits.
func (rl *RateLimiter) TimeUntilAvailable(tokens int) time.Duration {
	return max(rl.TokensBucket.TimeUntilAvailable(tokens), rl.RequestsBucket.TimeUntilAvailable(1))
}

// WaitAndConsume waits until tokens are available (up to maxWait), then consumes them.
// If maxWait is 0, there is no limit on how long to wait.
func (rl *RateLimiter) WaitAndConsume(ctx context.Context, tokens int, maxWait time.Duration) error {
	if rl.TokensBucket.Exceeds(tokens) {
		return fmt.Errorf("%w: %d tokens exceed bucket capacity", ErrMaxWaitExceeded, tokens)
	}

	var deadline time.Time
	if maxWait > 0 {
		deadline = time.Now().Add(maxWait)
	}

	for {
		if rl.TryConsume(tokens) {
			return nil
		}

		wait := rl.TimeUntilAvailable(tokens)
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		if !deadline.IsZero() && time.Now().Add(wait).After(deadline) {
			return fmt.Errorf("%w: need %v, max %v", ErrMaxWaitExceeded, wait, maxWait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TokenBucket is a bucket refilled to capacity once per interval.
type TokenBucket struct {
	mu             sync.Mutex
	capacity       int
	remaining      int
	refillInterval time.Duration
	lastRefill     time.Time
}

// NewTokenBucket creates a new token bucket.
func NewTokenBucket(capacity int, initialTokens int, refillInterval time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:       capacity,
		remaining:      initialTokens,
		refillInterval: refillInterval,
		lastRefill:     time.Now(),
	}
}

// HasCapacity checks if tokens are available without consuming them.
func (tb *TokenBucket) HasCapacity(tokens int) bool {
	if tb == nil {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(time.Now())
	return tokens <= tb.remaining
}

// Consume tries to consume a specified number of tokens from the bucket.
func (tb *TokenBucket) Consume(tokens int) bool {
	if tb == nil {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(time.Now())
	if tokens <= tb.remaining {
		tb.remaining -= tokens
		return true
	}
	return false
}

func (tb *TokenBucket) refillLocked(now time.Time) {
	if now.Sub(tb.lastRefill) >= tb.refillInterval {
		tb.remaining = tb.capacity
		tb.lastRefill = now
	}
}

// TimeUntilAvailable returns how long until tokens would be available (read-only).
// The bucket refills in full once per interval, so any shortfall is covered at
// the next refill.
func (tb *TokenBucket) TimeUntilAvailable(tokens int) time.Duration {
	if tb == nil {
		return 0
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := time.Since(tb.lastRefill)
	if elapsed >= tb.refillInterval || tokens <= tb.remaining {
		return 0
	}
	return tb.refillInterval - elapsed
}

// Exceeds reports whether tokens can never fit in the bucket.
func (tb *TokenBucket) Exceeds(tokens int) bool {
	return tb != nil && tokens > tb.capacity
}
