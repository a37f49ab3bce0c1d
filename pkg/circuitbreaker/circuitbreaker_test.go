package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failed")

func failing() (interface{}, error) { return nil, errUpstream }
func succeeding() (interface{}, error) { return "ok", nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := New(2, 1, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(failing); !errors.Is(err, errUpstream) {
			t.Fatalf("Request %d: expected the upstream error, got %v", i+1, err)
		}
	}
	if cb.State() != Open {
		t.Fatalf("Expected the breaker to be open, got %v", cb.State())
	}

	if _, err := cb.Execute(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := New(1, 2, 20*time.Millisecond)

	if _, err := cb.Execute(failing); err == nil {
		t.Fatal("Expected a failure")
	}
	if cb.State() != Open {
		t.Fatalf("Expected open after one failure, got %v", cb.State())
	}

	time.Sleep(30 * time.Millisecond)

	// Two successes in half-open close the circuit again.
	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(succeeding); err != nil {
			t.Fatalf("Half-open request %d failed: %v", i+1, err)
		}
	}
	if cb.State() != Closed {
		t.Errorf("Expected closed after recovery, got %v", cb.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := New(1, 2, 20*time.Millisecond)

	if _, err := cb.Execute(failing); err == nil {
		t.Fatal("Expected a failure")
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := cb.Execute(failing); !errors.Is(err, errUpstream) {
		t.Fatalf("Expected the upstream error in half-open, got %v", err)
	}
	if cb.State() != Open {
		t.Errorf("Expected the breaker to reopen, got %v", cb.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := New(2, 1, time.Minute)

	if _, err := cb.Execute(failing); err == nil {
		t.Fatal("Expected a failure")
	}
	if _, err := cb.Execute(succeeding); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := cb.Execute(failing); err == nil {
		t.Fatal("Expected a failure")
	}
	if cb.State() != Closed {
		t.Errorf("Non-consecutive failures must not open the breaker, got %v", cb.State())
	}
}
