package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return boom }); err != boom {
			t.Fatalf("attempt %d: got %v, want boom", i, err)
		}
	}

	if cb.State() != Open {
		t.Fatalf("state = %s, want open", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRequiresSuccessThreshold(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errors.New("fail") })
	if cb.State() != Open {
		t.Fatal("expected open after one failure (threshold=1)")
	}

	time.Sleep(20 * time.Millisecond)
	if cb.State() != HalfOpen {
		t.Fatalf("expected half_open after timeout, got %s", cb.State())
	}

	// One success in half-open must NOT close the breaker yet.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != HalfOpen {
		t.Fatalf("breaker closed after a single half-open success; want still half_open, got %s", cb.State())
	}

	// Second consecutive success reaches success_threshold=2 and closes it.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != Closed {
		t.Fatalf("state = %s, want closed after success_threshold successes", cb.State())
	}
}

func TestCircuitBreakerHalfOpenReopensOnFailure(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errors.New("fail") })
	time.Sleep(20 * time.Millisecond)
	if cb.State() != HalfOpen {
		t.Fatal("expected half_open")
	}

	_ = cb.Execute(func() error { return errors.New("still broken") })
	if cb.State() != Open {
		t.Fatalf("state = %s, want open after half-open failure", cb.State())
	}
}

func TestCircuitBreakerExcludedErrorsDontCount(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		ExcludeError:     func(err error) bool { return err.Error() == "ignored" },
	})

	_ = cb.Execute(func() error { return errors.New("ignored") })
	if cb.State() != Closed {
		t.Fatalf("excluded errors should not open the breaker, got %s", cb.State())
	}
}

func TestExecuteWithResult(t *testing.T) {
	cb := NewCircuitBreaker("vectorstore", DefaultCircuitBreakerConfig())

	got, err := ExecuteWithResult(cb, func() (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Fatalf("got (%d, %v), want (42, nil)", got, err)
	}
}
