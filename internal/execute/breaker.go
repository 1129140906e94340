package execute

import (
	"sync"
)

// CircuitBreaker trips after a run of consecutive item failures, which on
// a marketplace usually means the session went stale. A tripped breaker
// ends the pass so the driver rotates the session.
type CircuitBreaker struct {
	mu                  sync.Mutex
	ConsecutiveFailures int
	Threshold           int
	Tripped             bool
}

// NewCircuitBreaker creates a circuit breaker with the given threshold.
// A threshold of 0 or less disables it.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold < 0 {
		threshold = 0
	}
	return &CircuitBreaker{
		Threshold: threshold,
	}
}

// RecordFailure increments the failure counter.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ConsecutiveFailures++
	if cb.Threshold > 0 && cb.ConsecutiveFailures >= cb.Threshold {
		cb.Tripped = true
	}
}

// RecordSuccess resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ConsecutiveFailures = 0
	cb.Tripped = false
}

// ShouldRotate returns true once the threshold is reached.
func (cb *CircuitBreaker) ShouldRotate() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.Tripped
}

// Reset clears the circuit breaker state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ConsecutiveFailures = 0
	cb.Tripped = false
}

// GetConsecutiveFailures returns the current failure count (thread-safe).
func (cb *CircuitBreaker) GetConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.ConsecutiveFailures
}
