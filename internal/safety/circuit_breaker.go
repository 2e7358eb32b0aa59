package safety

import (
	"sync"
	"time"
)

// BreakerState represents the state of a venue circuit breaker
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the breaker state
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds thresholds for a venue circuit breaker
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures before opening
	SuccessThreshold uint32        // successes to close from half-open
	Window           time.Duration // rolling window for failure counting
	Cooldown         time.Duration // time the venue stays unhealthy once open
}

// CircuitBreaker tracks the health of a single venue adapter. After
// FailureThreshold consecutive failures within Window the venue is
// marked unhealthy for Cooldown; a half-open probe then decides whether
// it recovers.
type CircuitBreaker struct {
	config      BreakerConfig
	state       BreakerState
	failures    uint32
	successes   uint32
	windowStart time.Time
	lastFailure time.Time
	nextAttempt time.Time
	mutex       sync.RWMutex
	name        string
}

// NewCircuitBreaker creates a breaker for the named venue
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}
	if config.Cooldown == 0 {
		config.Cooldown = 30 * time.Second
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		name:   name,
	}
}

// Name returns the venue this breaker guards
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow reports whether the venue may be called right now. An open
// breaker transitions to half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Now().After(cb.nextAttempt) {
			cb.state = StateHalfOpen
			cb.successes = 0
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful venue call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.successes = 0
		}
	}
}

// RecordFailure records a failed venue call and opens the breaker once
// the threshold is crossed within the rolling window
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()

	// Failures only accumulate inside the rolling window.
	if cb.failures == 0 || now.Sub(cb.windowStart) > cb.config.Window {
		cb.windowStart = now
		cb.failures = 0
	}

	cb.failures++
	cb.lastFailure = now

	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.state = StateOpen
		cb.nextAttempt = now.Add(cb.config.Cooldown)
		cb.successes = 0
	}
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Stats returns a snapshot of the breaker for status reporting
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return BreakerStats{
		Name:        cb.name,
		State:       cb.state,
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
		NextAttempt: cb.nextAttempt,
	}
}

// Reset returns the breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}

// BreakerStats holds a snapshot of a breaker for observability
type BreakerStats struct {
	Name        string
	State       BreakerState
	Failures    uint32
	LastFailure time.Time
	NextAttempt time.Time
}
