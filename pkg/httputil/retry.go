// Package httputil provides retry and response-caching helpers shared by the
// registry client. Retries apply only to errors explicitly marked retryable
// (network failures, 5xx responses); everything else fails fast.
package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks an error as transient so [Retry] will attempt the
// operation again. Network failures and 5xx responses are wrapped with it.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retry runs fn up to attempts times, doubling delay between tries.
// Only errors wrapped in [RetryableError] are retried; anything else
// returns immediately. Cancellation during a backoff wait returns
// ctx.Err(); exhausting every attempt returns the last error.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error
	for i := range attempts {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return lastErr
}

// RetryWithBackoff applies the standard network policy: 3 attempts with a
// 1 second initial delay.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, 3, time.Second, fn)
}

func isRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}
