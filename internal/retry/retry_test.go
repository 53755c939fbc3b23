package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("http 503")

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	retries := 0

	err := fastPolicy().Execute(context.Background(),
		func(ctx context.Context) error {
			calls++
			if calls <= 2 {
				return errTransient
			}
			return nil
		},
		func(err error) bool { return true },
		func(attempt int, err error) { retries++ },
	)

	if err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if retries != 2 {
		t.Errorf("Expected onRetry twice, got %d", retries)
	}
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("http 400")
	calls := 0

	err := fastPolicy().Execute(context.Background(),
		func(ctx context.Context) error {
			calls++
			return permanent
		},
		func(err error) bool { return false },
		nil,
	)

	if !errors.Is(err, permanent) {
		t.Fatalf("Expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	calls := 0

	err := fastPolicy().Execute(context.Background(),
		func(ctx context.Context) error {
			calls++
			return errTransient
		},
		func(err error) bool { return true },
		nil,
	)

	if !errors.Is(err, errTransient) {
		t.Fatalf("Expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestExecuteNeverRetriesCancellation(t *testing.T) {
	calls := 0

	// The classifier claims everything is transient; cancellation must
	// still short-circuit.
	err := fastPolicy().Execute(context.Background(),
		func(ctx context.Context) error {
			calls++
			return context.Canceled
		},
		func(err error) bool { return true },
		nil,
	)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestExecuteStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	policy := Policy{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx,
		func(ctx context.Context) error {
			calls++
			return errTransient
		},
		func(err error) bool { return true },
		nil,
	)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}

func TestExecuteDelayCap(t *testing.T) {
	policy := Policy{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   10.0,
	}

	start := time.Now()
	_ = policy.Execute(context.Background(),
		func(ctx context.Context) error { return errTransient },
		func(err error) bool { return true },
		nil,
	)
	elapsed := time.Since(start)

	// Sleeps: 2ms, then capped at 4ms twice. Anything near a second
	// would mean the cap was ignored.
	if elapsed > 500*time.Millisecond {
		t.Errorf("Backoff cap not applied, took %v", elapsed)
	}
}
