package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/irlmbm/companion-backend/internal/companion_service/store"
	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"
)

// Sweeper runs retention_sweep tasks: it deletes remote recordings
// older than the retention threshold. Per-object deletion failures are
// logged and skipped; the sweep succeeds as long as the scan itself
// completed, and reports only the objects it actually deleted.
type Sweeper struct {
	audio      store.AudioStore
	defaultAge int
	now        func() time.Time
	logger     *logger.Logger
}

// NewSweeper creates a new Sweeper with the given default retention age in days.
func NewSweeper(audio store.AudioStore, defaultAgeDays int, logger *logger.Logger) *Sweeper {
	return &Sweeper{
		audio:      audio,
		defaultAge: defaultAgeDays,
		now:        time.Now,
		logger:     logger,
	}
}

// Execute runs one sweep attempt for the envelope's user.
func (s *Sweeper) Execute(ctx context.Context, envelope *models.TaskEnvelope) (*models.TaskResult, error) {
	var payload models.RetentionSweepPayload
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, Permanent(fmt.Errorf("%w: malformed sweep payload: %v", ErrValidation, err))
		}
	}
	maxAgeDays := payload.MaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = s.defaultAge
	}

	objects, err := s.audio.List(ctx, envelope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	cutoff := s.now().UTC().AddDate(0, 0, -maxAgeDays)
	deleted := make([]string, 0)
	for _, obj := range objects {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := s.audio.Remove(ctx, obj.Key); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"key": obj.Key,
			}).Error("Failed to delete expired recording")
			continue
		}
		deleted = append(deleted, obj.Key)
	}

	return &models.TaskResult{
		Success:      true,
		DeletedFiles: deleted,
		RequestID:    envelope.RequestID,
		Timestamp:    s.now().UTC(),
	}, nil
}
