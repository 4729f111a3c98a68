// Package retry runs an operation under a per-attempt deadline with
// exponential backoff between attempts.
//
// Every outbound call in the evaluation pipeline (candidate agents and judge
// models) goes through Do or Value. A failed attempt is retried after
// BaseDelay × 2^(attempt-1); a deadline expiry counts as an ordinary failure.
// Cancelling the parent context aborts immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults applied by the evaluation engine.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = time.Second

	// StandardTimeout bounds a single-turn agent or judge call.
	StandardTimeout = 60 * time.Second
	// ExtendedTimeout bounds multi-turn and artifact-bearing calls.
	ExtendedTimeout = 90 * time.Second
)

// PayloadClass selects the per-attempt deadline for a call.
type PayloadClass int

const (
	Standard PayloadClass = iota
	Extended
)

// DeadlineFor returns the per-attempt deadline for a payload class.
func DeadlineFor(c PayloadClass) time.Duration {
	if c == Extended {
		return ExtendedTimeout
	}
	return StandardTimeout
}

// ErrAttemptTimeout is wrapped by errors produced when an attempt outlives
// its deadline.
var ErrAttemptTimeout = errors.New("retry: attempt timed out")

// ExhaustedError is returned after every attempt failed. Err is the last
// attempt's error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Policy configures a retried call. Zero MaxAttempts means one attempt;
// zero AttemptTimeout means no per-attempt deadline.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration

	// OnRetry is invoked after a failed attempt, before waiting delay.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the engine's standard policy for a payload class.
func DefaultPolicy(c PayloadClass) Policy {
	return Policy{
		MaxAttempts:    DefaultAttempts,
		BaseDelay:      DefaultBaseDelay,
		AttemptTimeout: DeadlineFor(c),
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// sleep waits for d or until ctx is done. Replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op under p. It returns nil on the first successful attempt,
// ctx.Err() if the parent context ends, or an *ExhaustedError.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// runAttempt races op against its deadline. An op that ignores its context
// is abandoned when the deadline passes; its eventual result is discarded.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return op(ctx)
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(actx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return zero, timeoutError(timeout, r.err)
		}
		return r.v, r.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, timeoutError(timeout, context.DeadlineExceeded)
	}
}

func timeoutError(timeout time.Duration, cause error) error {
	return fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, timeout, cause)
}
