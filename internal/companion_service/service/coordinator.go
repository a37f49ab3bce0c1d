package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/internal/notify"
	"github.com/irlmbm/companion-backend/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Executor runs attempts of a single task kind.
type Executor interface {
	Execute(ctx context.Context, envelope *models.TaskEnvelope) (*models.TaskResult, error)
}

// Coordinator consumes task envelopes, dispatches them through an
// explicit kind-to-executor registry, runs them under the retry
// controller and records the terminal outcome. Every outcome, success
// or exhausted-retry failure, ends up as a uniform TaskResult in the
// status store and on the user's update channel; tasks never crash the
// worker.
type Coordinator struct {
	registry map[models.TaskKind]Executor
	retry    *Controller
	status   notify.StatusStore
	notifier notify.Notifier
	logger   *logger.Logger
}

// NewCoordinator creates a Coordinator with an empty registry. The retry
// controller checkpoints each attempt increment through the status store,
// so the count survives a worker crash between retries.
func NewCoordinator(retry *Controller, status notify.StatusStore, notifier notify.Notifier, logger *logger.Logger) *Coordinator {
	c := &Coordinator{
		registry: make(map[models.TaskKind]Executor),
		retry:    retry,
		status:   status,
		notifier: notifier,
		logger:   logger,
	}
	retry.checkpoint = c.checkpointAttempt
	return c
}

// checkpointAttempt persists the attempt count alongside the running state.
func (c *Coordinator) checkpointAttempt(ctx context.Context, envelope *models.TaskEnvelope) error {
	return c.status.Set(ctx, &models.TaskStatusRecord{
		TaskID:  envelope.ID,
		State:   models.TaskStateRunning,
		Attempt: envelope.Attempt,
	})
}

// Register binds a task kind to its executor. Called at startup before
// the consumers start.
func (c *Coordinator) Register(kind models.TaskKind, executor Executor) {
	c.registry[kind] = executor
}

// ProcessTask is the handler for each broker message.
func (c *Coordinator) ProcessTask(ctx context.Context, msg kafka.Message) error {
	var envelope models.TaskEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to unmarshal task envelope, dropping message")
		return nil
	}

	taskLogger := logger.New("CompanionWorker", envelope.ID, envelope.UserID)
	taskLogger.WithPayload(map[string]interface{}{"kind": envelope.Kind}).Info("Starting to process task")

	executor, ok := c.registry[envelope.Kind]
	if !ok {
		c.finish(ctx, &envelope, nil, fmt.Errorf("no executor registered for task kind %q", envelope.Kind))
		return nil
	}

	// The broker redelivers the enqueue-time envelope, so a crash between
	// retries would reset the attempt count. Resume from the checkpointed
	// count instead.
	if stored, err := c.status.Get(ctx, envelope.ID); err == nil && stored.Attempt > envelope.Attempt {
		taskLogger.WithPayload(map[string]interface{}{"attempt": stored.Attempt}).Info("Resuming task from checkpointed attempt")
		envelope.Attempt = stored.Attempt
	}

	if err := c.status.Set(ctx, &models.TaskStatusRecord{
		TaskID:  envelope.ID,
		State:   models.TaskStateRunning,
		Attempt: envelope.Attempt,
	}); err != nil {
		taskLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to mark task running")
	}

	result, err := c.retry.Run(ctx, &envelope, executor.Execute)
	c.finish(ctx, &envelope, result, err)
	return nil
}

// finish records the terminal outcome and publishes it to the user.
func (c *Coordinator) finish(ctx context.Context, envelope *models.TaskEnvelope, result *models.TaskResult, err error) {
	record := &models.TaskStatusRecord{TaskID: envelope.ID}
	if err != nil {
		record.State = models.TaskStateFailed
		record.Error = err.Error()
		record.Result = &models.TaskResult{
			Success:   false,
			Error:     err.Error(),
			RequestID: envelope.RequestID,
			Timestamp: time.Now().UTC(),
		}
	} else {
		record.State = models.TaskStateSucceeded
		record.Result = result
	}

	if err := c.status.Set(ctx, record); err != nil {
		c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"task_id": envelope.ID,
		}).Error("Failed to store task status record")
	}
	if err := c.notifier.Publish(ctx, envelope.UserID, record); err != nil {
		c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"task_id": envelope.ID,
		}).Error("Failed to publish task outcome")
	}

	c.logger.WithPayload(map[string]interface{}{
		"task_id": envelope.ID,
		"state":   record.State,
	}).Info("Task finished")
}
