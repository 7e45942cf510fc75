package storage

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds how transient storage failures are retried.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// BaseDelay is the sleep after the first failure. It doubles on every
	// subsequent failure up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps a single sleep. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultRetryPolicy is used when a driver is built without one.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  4,
	BaseDelay: 50 * time.Millisecond,
	MaxDelay:  time.Second,
}

// Backoff returns the sleep before the given retry (attempt starts at 1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	sleep := p.BaseDelay
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if p.MaxDelay > 0 && sleep >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && sleep > p.MaxDelay {
		sleep = p.MaxDelay
	}
	return sleep
}

// Retry runs fn until it succeeds, returns a non-transient error, the
// attempts are exhausted or ctx is cancelled. Only errors wrapping
// ErrTransient are retried.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	return RetryWhen(ctx, p, IsTransient, fn)
}

// RetryWhen is Retry with a caller-supplied predicate deciding which errors
// are worth another attempt.
func RetryWhen(ctx context.Context, p RetryPolicy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		err := fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		lastErr = err

		if i == attempts {
			break
		}

		timer := time.NewTimer(p.Backoff(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w (last error: %w)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
