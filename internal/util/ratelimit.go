package util

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls to an external API. A nil *RateLimiter never
// blocks.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perMinute operations per minute with bursts of up to
// burst operations. It returns nil (unlimited) when perMinute <= 0.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), max(burst, 1))}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	return rl.limiter.Wait(ctx)
}

// Allow takes a token if one is available without blocking.
func (rl *RateLimiter) Allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}
