package cache

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThresholdWithinWindow(t *testing.T) {
	cb := NewCircuitBreaker(3, 30*time.Second, 15*time.Second)

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("expected CLOSED after 2 failures, got %s", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("expected OPEN after 3 failures, got %s", cb.State())
	}

	if cb.Allow() {
		t.Error("expected Allow to reject while OPEN before cooldown")
	}
}

func TestCircuitBreaker_WindowResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, 10*time.Second, time.Minute)

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	cb.RecordFailure()

	// Third failure lands outside the window; the count restarts.
	now = now.Add(11 * time.Second)
	cb.RecordFailure()

	if cb.State() != BreakerClosed {
		t.Errorf("expected CLOSED when failures fall outside window, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 30*time.Second, 15*time.Second)

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	// After cooldown a single probe is admitted.
	now = now.Add(16 * time.Second)
	if !cb.Allow() {
		t.Fatal("expected probe to be admitted after cooldown")
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("expected second caller to be rejected during probe")
	}

	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Errorf("expected CLOSED after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 30*time.Second, 15*time.Second)

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(16 * time.Second)
	if !cb.Allow() {
		t.Fatal("expected probe to be admitted")
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Errorf("expected OPEN after failed probe, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("expected rejection immediately after failed probe")
	}
}
