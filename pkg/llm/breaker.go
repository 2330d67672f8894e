package llm

import (
	"sync"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	// CircuitClosed allows requests to pass through
	CircuitClosed CircuitBreakerState = "closed"
	// CircuitOpen blocks all requests
	CircuitOpen CircuitBreakerState = "open"
	// CircuitHalfOpen allows limited requests for testing
	CircuitHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreaker guards the chat transport. A run of failed completions
// opens the circuit and sheds calls until the backend has had time to
// recover; callers surface a shed call as a TransportError.
type CircuitBreaker struct {
	mu           sync.RWMutex
	failures     int
	lastFailure  time.Time
	state        CircuitBreakerState
	successCount int

	// Configuration
	failureThreshold  int
	successThreshold  int
	openStateDuration time.Duration
}

// NewCircuitBreaker creates a new circuit breaker with default settings
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:             CircuitClosed,
		failureThreshold:  5,
		successThreshold:  3,
		openStateDuration: 30 * time.Second,
	}
}

// RecordSuccess records a successful completion
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			// Enough successes, close the circuit
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successCount = 0
		}
	} else if cb.state == CircuitClosed {
		cb.failures = 0
	}
}

// RecordFailure records a failed completion
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen {
		// Failure while probing, go back to open
		cb.state = CircuitOpen
		cb.successCount = 0
		return
	}

	if cb.failures >= cb.failureThreshold {
		cb.state = CircuitOpen
	}
}

// CanExecute checks if a completion can be attempted
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitClosed || cb.state == CircuitHalfOpen {
		return true
	}

	// Open: allow a probe once the backend has had time to recover.
	if time.Since(cb.lastFailure) > cb.openStateDuration {
		cb.state = CircuitHalfOpen
		cb.successCount = 0
		return true
	}

	return false
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.successCount = 0
	cb.lastFailure = time.Time{}
}
