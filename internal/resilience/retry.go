package resilience

import (
	"context"
	"math/rand"
	"time"

	ferrors "github.com/falconeye/falconeye/internal/errors"
)

// RetryConfig controls exponential backoff between attempts.
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	// Jitter is a fraction in [0, 1] of the computed delay added as random
	// jitter, to avoid thundering-herd retries across concurrent callers.
	Jitter float64
	// IsRetryable reports whether err should trigger another attempt.
	// Defaults to errors.IsRetryable when nil, so validation/argument
	// errors bypass retry entirely.
	IsRetryable func(error) bool
}

// DefaultRetryConfig returns the standard backoff defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          0.1,
		IsRetryable:     ferrors.IsRetryable,
	}
}

func (c RetryConfig) retryable(err error) bool {
	if c.IsRetryable != nil {
		return c.IsRetryable(err)
	}
	return ferrors.IsRetryable(err)
}

func (c RetryConfig) delayFor(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * pow(c.ExponentialBase, float64(attempt-1))
	if maxDelay := float64(c.MaxDelay); delay > maxDelay {
		delay = maxDelay
	}
	if c.Jitter > 0 {
		delay += delay * c.Jitter * rand.Float64()
	}
	return time.Duration(delay)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// Retry runs fn, retrying on retryable errors with exponential backoff and
// jitter, up to cfg.MaxRetries additional attempts. Non-retryable errors
// (per cfg.IsRetryable) return immediately without consuming a retry.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.delayFor(attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		if !cfg.retryable(err) {
			return err
		}

		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}
	}

	return lastErr
}

// RetryWithResult is the generic variant of Retry for functions that
// return a value alongside an error.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(cfg.delayFor(attempt)):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !cfg.retryable(err) {
			return zero, err
		}

		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}
	}

	return zero, lastErr
}
