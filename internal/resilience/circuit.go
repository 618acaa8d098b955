// Package resilience provides the circuit breaker and retry-with-backoff
// policies. The LLM gateway client wraps every embedding and chat call in
// both; vector store calls are not wrapped.
package resilience

import (
	"sync"
	"time"

	ferrors "github.com/falconeye/falconeye/internal/errors"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls breaker thresholds.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// state before the breaker opens.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in
	// HalfOpen state required before the breaker closes.
	SuccessThreshold int
	// Timeout is how long the breaker stays Open before probing again.
	Timeout time.Duration
	// ExcludeError, when non-nil, reports whether an error should be
	// ignored entirely (never counted as a failure). Used to keep
	// validation-category errors from tripping the breaker.
	ExcludeError func(error) bool
}

// DefaultCircuitBreakerConfig returns the standard thresholds: 5
// failures to open, 2 successes to close, 60s recovery timeout.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		ExcludeError:     func(err error) bool { return ferrors.IsValidation(err) },
	}
}

// CircuitBreaker protects a single collaborator (named for logging) from
// cascading failures. Safe for concurrent use.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a breaker in the Closed state.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultCircuitBreakerConfig().SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCircuitBreakerConfig().Timeout
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  Closed,
	}
}

// State returns the current state, first applying the Open -> HalfOpen
// timeout transition if due.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == Open && !cb.lastFailureTime.IsZero() &&
		time.Since(cb.lastFailureTime) >= cb.config.Timeout {
		cb.state = HalfOpen
		cb.successCount = 0
	}
	return cb.state
}

// ErrCircuitOpen is returned by Execute when the breaker is Open.
var ErrCircuitOpen = ferrors.New(ferrors.ErrCodeCircuitOpen, "circuit breaker is open", nil).
	WithSuggestion("wait for the recovery timeout and retry")

// Execute runs fn if the circuit allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	state := cb.currentStateLocked()
	if state == Open {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.recordSuccessLocked()
		return nil
	}

	if cb.config.ExcludeError != nil && cb.config.ExcludeError(err) {
		return err
	}
	cb.recordFailureLocked()
	return err
}

// ExecuteWithResult runs fn if the circuit allows it and returns its
// result, or the zero value and ErrCircuitOpen if the breaker is open.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T

	cb.mu.Lock()
	state := cb.currentStateLocked()
	if state == Open {
		cb.mu.Unlock()
		return zero, ErrCircuitOpen
	}
	cb.mu.Unlock()

	result, err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.recordSuccessLocked()
		return result, nil
	}

	if cb.config.ExcludeError != nil && cb.config.ExcludeError(err) {
		return zero, err
	}
	cb.recordFailureLocked()
	return zero, err
}

// recordSuccessLocked records a success. In HalfOpen it only closes the
// circuit once SuccessThreshold consecutive successes have been observed.
func (cb *CircuitBreaker) recordSuccessLocked() {
	cb.failureCount = 0

	if cb.state == HalfOpen {
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = Closed
			cb.successCount = 0
		}
	}
}

// recordFailureLocked records a failure. HalfOpen reopens immediately on
// any failure; Closed opens once FailureThreshold is reached.
func (cb *CircuitBreaker) recordFailureLocked() {
	cb.lastFailureTime = time.Now()

	if cb.state == HalfOpen {
		cb.state = Open
		cb.failureCount = 0
		cb.successCount = 0
		return
	}

	cb.failureCount++
	if cb.state == Closed && cb.failureCount >= cb.config.FailureThreshold {
		cb.state = Open
	}
}

// Reset forces the breaker back to Closed, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailureTime = time.Time{}
}

// Name returns the breaker's name, for logging.
func (cb *CircuitBreaker) Name() string { return cb.name }
