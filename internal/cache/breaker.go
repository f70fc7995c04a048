package cache

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state for the Redis backing.
type BreakerState int

const (
	// BreakerClosed means Redis is trusted and all ops go through.
	BreakerClosed BreakerState = iota

	// BreakerOpen means Redis is bypassed entirely.
	BreakerOpen

	// BreakerHalfOpen admits exactly one probe operation.
	BreakerHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// CircuitBreaker opens after N consecutive failures within a window, then
// admits a single probe after the cooldown. A successful probe closes the
// circuit; a failed probe reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	window    time.Duration
	cooldown  time.Duration

	state        BreakerState
	failures     int
	firstFailure time.Time
	openedAt     time.Time
	probing      bool

	now func() time.Time // injectable clock for tests
}

// NewCircuitBreaker creates a breaker with the given threshold, failure
// window, and cooldown before the half-open probe.
func NewCircuitBreaker(threshold int, window, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		state:     BreakerClosed,
		now:       time.Now,
	}
}

// Allow reports whether the next Redis operation may proceed.
// In HALF_OPEN only the first caller after cooldown gets through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cooldown {
			cb.state = BreakerHalfOpen
			cb.probing = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit and clears failure bookkeeping.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = BreakerClosed
	cb.failures = 0
	cb.probing = false
}

// RecordFailure counts a failure. Failures outside the window restart the
// count; reaching the threshold, or failing the half-open probe, opens the
// circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.state == BreakerHalfOpen {
		cb.open(now)
		return
	}

	if cb.failures == 0 || (cb.window > 0 && now.Sub(cb.firstFailure) > cb.window) {
		cb.failures = 0
		cb.firstFailure = now
	}
	cb.failures++

	if cb.failures >= cb.threshold {
		cb.open(now)
	}
}

func (cb *CircuitBreaker) open(now time.Time) {
	cb.state = BreakerOpen
	cb.openedAt = now
	cb.failures = 0
	cb.probing = false
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
