package service

import (
	"context"
	"fmt"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"
)

// WorkFunc executes one attempt of a task.
type WorkFunc func(ctx context.Context, envelope *models.TaskEnvelope) (*models.TaskResult, error)

// Controller wraps task execution with bounded exponential backoff.
// Transient failures are retried after base * 2^attempt, up to
// maxRetries; permanent failures surface immediately. Each attempt
// increment is handed to the checkpoint hook before the backoff sleep,
// so the count survives a worker crash: the broker redelivers the
// original envelope, and the coordinator restores the checkpointed
// attempt before resuming.
type Controller struct {
	maxRetries int
	base       time.Duration
	sleep      func(time.Duration)
	checkpoint func(ctx context.Context, envelope *models.TaskEnvelope) error
	logger     *logger.Logger
}

// NewController creates a retry Controller.
func NewController(maxRetries int, base time.Duration, logger *logger.Logger) *Controller {
	return &Controller{
		maxRetries: maxRetries,
		base:       base,
		sleep:      time.Sleep,
		logger:     logger,
	}
}

// Run executes work under the retry policy and returns the terminal outcome.
func (c *Controller) Run(ctx context.Context, envelope *models.TaskEnvelope, work WorkFunc) (*models.TaskResult, error) {
	for {
		result, err := work(ctx, envelope)
		if err == nil {
			return result, nil
		}

		if IsPermanent(err) {
			c.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "permanent"}).WithPayload(map[string]interface{}{
				"task_id": envelope.ID,
				"kind":    envelope.Kind,
			}).Warn("Task failed permanently, not retrying")
			return nil, err
		}

		if envelope.Attempt >= c.maxRetries {
			return nil, fmt.Errorf("retries exhausted after %d attempts: %w", envelope.Attempt+1, err)
		}

		delay := c.base * time.Duration(1<<envelope.Attempt)
		c.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "transient"}).WithPayload(map[string]interface{}{
			"task_id": envelope.ID,
			"kind":    envelope.Kind,
			"attempt": envelope.Attempt,
			"delay":   delay.String(),
		}).Warn("Task failed, scheduling retry")

		envelope.Attempt++
		if c.checkpoint != nil {
			if err := c.checkpoint(ctx, envelope); err != nil {
				c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
					"task_id": envelope.ID,
					"attempt": envelope.Attempt,
				}).Warn("Failed to checkpoint retry attempt")
			}
		}
		c.sleep(delay)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}
