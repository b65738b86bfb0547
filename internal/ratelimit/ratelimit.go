// Package ratelimit provides the process-wide scan rate limiter. One
// Limiter is constructed at startup and injected into every component that
// probes the network; instantiating a second orchestrator must not buy a
// second token budget.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter is a shared token bucket. Acquiring a token suspends the caller
// until refill; requests are never dropped.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a limiter with the given steady refill rate (tokens/second)
// and burst capacity. Invalid values are programmer errors and fail
// construction.
func New(tokensPerSecond float64, burst int) (*Limiter, error) {
	if tokensPerSecond <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %v", tokensPerSecond)
	}
	if burst < 1 {
		return nil, fmt.Errorf("burst must be at least 1, got %d", burst)
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(tokensPerSecond), burst)}, nil
}

// Wait blocks until a token is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Allow reports whether a token is immediately available, consuming it if so.
func (l *Limiter) Allow() bool {
	return l.bucket.Allow()
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}
