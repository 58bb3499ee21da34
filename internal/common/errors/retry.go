package errors

import (
	"context"
	"time"
)

// RetryPolicy bounds retries for transient store failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy matches the per-code retry counts in GetRetryCount.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: 100 * time.Millisecond}
}

// Retry runs operation up to MaxAttempts times with exponential backoff.
// It stops early when the error is not retryable or the context is done.
func (p RetryPolicy) Retry(ctx context.Context, operation func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.InitialBackoff

	var err error
	for i := 0; i < attempts; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if !AsStandard(err).Retryable {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
