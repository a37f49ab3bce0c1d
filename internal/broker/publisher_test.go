package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(models.TaskKindChatTurn, models.ChatTurnPayload{Message: "hello"}, "u1", "req-1", "th-1")
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}

	if env.ID == "" {
		t.Error("Expected a generated envelope id")
	}
	if env.Kind != models.TaskKindChatTurn || env.UserID != "u1" || env.RequestID != "req-1" || env.ThreadID != "th-1" {
		t.Errorf("Unexpected envelope fields: %+v", env)
	}
	if env.Attempt != 0 {
		t.Errorf("A fresh envelope must start at attempt 0, got %d", env.Attempt)
	}
	if env.CreatedAt.IsZero() || env.CreatedAt.After(time.Now().UTC()) {
		t.Errorf("Unexpected creation time: %v", env.CreatedAt)
	}

	var payload models.ChatTurnPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if payload.Message != "hello" {
		t.Errorf("Payload round-trip lost the message: %+v", payload)
	}
}

func TestNewEnvelopeUniqueIDs(t *testing.T) {
	a, err := NewEnvelope(models.TaskKindRetentionSweep, models.RetentionSweepPayload{}, "u1", "r1", "")
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	b, err := NewEnvelope(models.TaskKindRetentionSweep, models.RetentionSweepPayload{}, "u1", "r2", "")
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	if a.ID == b.ID {
		t.Error("Envelope ids must be unique")
	}
}
