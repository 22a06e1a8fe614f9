package ai

import (
	"context"
	"time"
)

// RateLimiter implements a token bucket limiter for model API calls.
type RateLimiter struct {
	tokens  chan struct{}
	stopped chan struct{}
}

// NewRateLimiter allows 'limit' requests per 'window'.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	tokens := make(chan struct{}, limit)
	for i := 0; i < limit; i++ {
		tokens <- struct{}{}
	}

	rl := &RateLimiter{
		tokens:  tokens,
		stopped: make(chan struct{}),
	}

	go rl.refillTokens(limit, window)

	return rl
}

// Wait blocks until a token is available or the context is canceled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-rl.stopped:
		return context.Canceled
	}
}

// Stop halts the refill goroutine. Pending Wait calls return.
func (rl *RateLimiter) Stop() {
	close(rl.stopped)
}

func (rl *RateLimiter) refillTokens(limit int, window time.Duration) {
	ticker := time.NewTicker(window / time.Duration(limit))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case rl.tokens <- struct{}{}:
			default:
			}
		case <-rl.stopped:
			return
		}
	}
}
