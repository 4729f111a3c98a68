// Package ratelimit throttles evaluation triggers per client. Limiters fail
// open: a limiter error lets the request through and is only logged.
package ratelimit

import "context"

// Limiter decides whether the caller identified by key may start another
// request. Implementations are shared across handlers and must be safe for
// concurrent use.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// NoopLimiter never throttles.
type NoopLimiter struct{}

// Allow implements Limiter.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close implements Limiter.
func (NoopLimiter) Close() error { return nil }

var (
	_ Limiter = NoopLimiter{}
	_ Limiter = (*MemoryLimiter)(nil)
)
