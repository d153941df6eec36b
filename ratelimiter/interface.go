// Package ratelimiter provides per-model request and token budgets for
// generation calls.
package ratelimiter

import (
	"context"
	"time"
)

// Limiter defines the interface for rate limiters.
// Implementations can be local (in-memory) or distributed (Redis, etc.).
type Limiter interface {
	// TryConsume atomically checks capacity and consumes tokens plus one request if available.
	// Returns true if they were consumed, false if capacity is insufficient.
	TryConsume(numTokens int) bool

	// TimeUntilAvailable returns how long until tokens would be available (read-only).
	TimeUntilAvailable(tokens int) time.Duration

	// WaitAndConsume waits until tokens are available, then consumes them.
	// Returns error if context is cancelled or maxWait is exceeded.
	WaitAndConsume(ctx context.Context, tokens int, maxWait time.Duration) error
}
