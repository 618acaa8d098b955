package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	ferrors "github.com/falconeye/falconeye/internal/errors"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{
		MaxRetries:      3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		ExponentialBase: 2,
		IsRetryable:     func(error) bool { return true },
	}

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustsAndReturnsLastError(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:      2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        2 * time.Millisecond,
		ExponentialBase: 2,
		IsRetryable:     func(error) bool { return true },
	}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("still broken")
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 { // initial + 2 retries
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryBypassesNonRetryableErrors(t *testing.T) {
	cfg := DefaultRetryConfig()
	attempts := 0

	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return ferrors.ValidationError("bad input", nil)
	})

	if err == nil {
		t.Fatal("expected validation error to propagate")
	}
	if attempts != 1 {
		t.Fatalf("non-retryable error should not be retried, attempts = %d", attempts)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{
		MaxRetries:      5,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		ExponentialBase: 2,
		IsRetryable:     func(error) bool { return true },
	}

	attempts := 0
	err := Retry(ctx, cfg, func() error {
		attempts++
		return errors.New("fail")
	})

	if err == nil {
		t.Fatal("expected context cancellation error")
	}
	if attempts > 1 {
		t.Fatalf("expected cancellation to stop further attempts, got %d", attempts)
	}
}

func TestRetryWithResult(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:      1,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		ExponentialBase: 2,
		IsRetryable:     func(error) bool { return true },
	}

	attempts := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("first try fails")
		}
		return "ok", nil
	})

	if err != nil || got != "ok" {
		t.Fatalf("got (%q, %v), want (ok, nil)", got, err)
	}
}
