// Package retry executes operations with bounded attempts and
// exponential backoff. Only failures the caller classifies as
// transient are retried; cancellation is never retried.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy configures the retry loop.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Default returns the policy used for backend calls.
func Default() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Execute runs op until it succeeds, fails permanently, or attempts are
// exhausted. classify reports whether an error is transient; onRetry,
// if non-nil, is invoked before each backoff sleep with the attempt
// number that just failed. The last error is returned unchanged so
// callers can inspect its type.
func (p Policy) Execute(ctx context.Context, op func(context.Context) error, classify func(error) bool, onRetry func(attempt int, err error)) error {
	delay := p.InitialDelay
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		// Cancellation short-circuits regardless of the classifier.
		if errors.Is(lastErr, context.Canceled) || ctx.Err() != nil {
			return lastErr
		}

		if classify != nil && !classify(lastErr) {
			return lastErr
		}

		if attempt == maxAttempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		sleep := delay
		if sleep > p.MaxDelay {
			sleep = p.MaxDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	return lastErr
}
