package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("test", "", "")
}

func newTestController(maxRetries int, base time.Duration) (*Controller, *[]time.Duration) {
	c := NewController(maxRetries, base, testLogger())
	delays := &[]time.Duration{}
	c.sleep = func(d time.Duration) {
		*delays = append(*delays, d)
	}
	return c, delays
}

func TestRetryTransientThenSuccess(t *testing.T) {
	c, delays := newTestController(3, 2*time.Second)
	envelope := &models.TaskEnvelope{ID: "t1"}

	attempts := 0
	result, err := c.Run(context.Background(), envelope, func(ctx context.Context, e *models.TaskEnvelope) (*models.TaskResult, error) {
		attempts++
		if attempts <= 2 {
			return nil, errors.New("connection refused")
		}
		return &models.TaskResult{Success: true}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success {
		t.Error("Expected a successful result")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	// Backoff doubles per attempt: base*2^0, base*2^1.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("Expected %d delays, got %d", len(want), len(*delays))
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("Delay %d: expected %v, got %v", i, d, (*delays)[i])
		}
	}
	if envelope.Attempt != 2 {
		t.Errorf("Expected attempt counter 2, got %d", envelope.Attempt)
	}
}

func TestRetryPermanentFailsImmediately(t *testing.T) {
	c, delays := newTestController(3, time.Second)

	attempts := 0
	_, err := c.Run(context.Background(), &models.TaskEnvelope{ID: "t2"}, func(ctx context.Context, e *models.TaskEnvelope) (*models.TaskResult, error) {
		attempts++
		return nil, Permanent(errors.New("empty message"))
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !IsPermanent(err) {
		t.Errorf("Expected a permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", attempts)
	}
	if len(*delays) != 0 {
		t.Errorf("Expected no backoff sleeps, got %d", len(*delays))
	}
}

func TestRetryExhaustion(t *testing.T) {
	c, delays := newTestController(3, time.Second)

	attempts := 0
	_, err := c.Run(context.Background(), &models.TaskEnvelope{ID: "t3"}, func(ctx context.Context, e *models.TaskEnvelope) (*models.TaskResult, error) {
		attempts++
		return nil, errors.New("upstream unavailable")
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !strings.Contains(err.Error(), "retries exhausted after 4 attempts") {
		t.Errorf("Unexpected error message: %v", err)
	}
	if attempts != 4 {
		t.Errorf("Expected 4 attempts (1 initial + 3 retries), got %d", attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("Expected %d delays, got %d", len(want), len(*delays))
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("Delay %d: expected %v, got %v", i, d, (*delays)[i])
		}
	}
}

func TestRetryResumesFromRedeliveredAttempt(t *testing.T) {
	c, delays := newTestController(3, time.Second)

	// An envelope redelivered after a crash carries its attempt count.
	envelope := &models.TaskEnvelope{ID: "t4", Attempt: 2}
	attempts := 0
	_, err := c.Run(context.Background(), envelope, func(ctx context.Context, e *models.TaskEnvelope) (*models.TaskResult, error) {
		attempts++
		return nil, errors.New("still failing")
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts (attempts 2 and 3), got %d", attempts)
	}
	if len(*delays) != 1 || (*delays)[0] != 4*time.Second {
		t.Errorf("Expected a single 4s delay, got %v", *delays)
	}
}

func TestRetryCheckpointsEveryIncrement(t *testing.T) {
	c, _ := newTestController(3, time.Second)
	var checkpoints []int
	c.checkpoint = func(ctx context.Context, e *models.TaskEnvelope) error {
		checkpoints = append(checkpoints, e.Attempt)
		return nil
	}

	attempts := 0
	_, err := c.Run(context.Background(), &models.TaskEnvelope{ID: "t5"}, func(ctx context.Context, e *models.TaskEnvelope) (*models.TaskResult, error) {
		attempts++
		if attempts <= 2 {
			return nil, errors.New("connection refused")
		}
		return &models.TaskResult{Success: true}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Each increment is persisted before the backoff sleep, so a crash
	// while waiting never loses the count.
	want := []int{1, 2}
	if len(checkpoints) != len(want) {
		t.Fatalf("Expected checkpoints %v, got %v", want, checkpoints)
	}
	for i, a := range want {
		if checkpoints[i] != a {
			t.Errorf("Checkpoint %d: expected attempt %d, got %d", i, a, checkpoints[i])
		}
	}
}

func TestIsPermanentSeesWrappedErrors(t *testing.T) {
	err := Permanent(ErrValidation)
	wrapped := errors.New("outer: " + err.Error())
	if IsPermanent(wrapped) {
		t.Error("A plain error must not read as permanent")
	}
	if !IsPermanent(Permanent(wrapped)) {
		t.Error("Permanent() result must read as permanent")
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("Permanent must not hide the wrapped sentinel")
	}
}
