package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/irlmbm/companion-backend/internal/broker"
	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/internal/notify"
	"github.com/irlmbm/companion-backend/pkg/logger"
)

// ErrWaitTimeout is returned by WaitForResult when a task does not reach a
// terminal state within the wait window. A timeout does not imply failure:
// the task keeps running and its result stays retrievable by id.
var ErrWaitTimeout = errors.New("timed out waiting for task result")

// pollInterval is how often WaitForResult re-reads the status backend.
const pollInterval = 250 * time.Millisecond

// TaskService accepts tasks from the API layer, records them as queued and
// hands them to the broker. It also serves status reads and the blocking
// wait path for synchronous clients.
type TaskService struct {
	publisher broker.Publisher
	status    notify.StatusStore
	updates   notify.Subscriber
	logger    *logger.Logger
}

// SubmitResult is what the caller gets back after an enqueue: the ids it
// needs to track the task.
type SubmitResult struct {
	TaskID    string `json:"task_id"`
	RequestID string `json:"request_id"`
	ThreadID  string `json:"thread_id,omitempty"`
}

func NewTaskService(publisher broker.Publisher, status notify.StatusStore, updates notify.Subscriber, log *logger.Logger) *TaskService {
	return &TaskService{
		publisher: publisher,
		status:    status,
		updates:   updates,
		logger:    log,
	}
}

// SubmitChat enqueues a chat turn. A missing request id is generated here so
// the caller can always correlate the response; a missing thread id is
// generated too and returned, starting a new conversation.
func (s *TaskService) SubmitChat(ctx context.Context, userID, threadID, requestID, message string) (*SubmitResult, error) {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	if threadID == "" {
		threadID = uuid.New().String()
	}
	env, err := broker.NewEnvelope(models.TaskKindChatTurn, models.ChatTurnPayload{Message: message}, userID, requestID, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, env); err != nil {
		return nil, err
	}
	return &SubmitResult{TaskID: env.ID, RequestID: requestID, ThreadID: threadID}, nil
}

// SubmitUpload enqueues an audio upload task.
func (s *TaskService) SubmitUpload(ctx context.Context, userID, requestID, audioBase64, localPath string) (*SubmitResult, error) {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	payload := models.AudioUploadPayload{AudioBase64: audioBase64, LocalPath: localPath}
	env, err := broker.NewEnvelope(models.TaskKindAudioUpload, payload, userID, requestID, "")
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, env); err != nil {
		return nil, err
	}
	return &SubmitResult{TaskID: env.ID, RequestID: requestID}, nil
}

// SubmitSweep enqueues a retention sweep for a user's stored audio.
// maxAgeDays <= 0 lets the worker apply its configured default.
func (s *TaskService) SubmitSweep(ctx context.Context, userID string, maxAgeDays int) (*SubmitResult, error) {
	requestID := uuid.New().String()
	env, err := broker.NewEnvelope(models.TaskKindRetentionSweep, models.RetentionSweepPayload{MaxAgeDays: maxAgeDays}, userID, requestID, "")
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, env); err != nil {
		return nil, err
	}
	return &SubmitResult{TaskID: env.ID, RequestID: requestID}, nil
}

// enqueue writes the queued status first, then publishes. The status write
// comes first so a client polling right after submit never sees a missing
// record for a task the broker already holds.
func (s *TaskService) enqueue(ctx context.Context, env *models.TaskEnvelope) error {
	queued := &models.TaskStatusRecord{TaskID: env.ID, State: models.TaskStateQueued}
	if err := s.status.Set(ctx, queued); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"task_id": env.ID,
		}).Error("Failed to record queued status")
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		failed := &models.TaskStatusRecord{
			TaskID: env.ID,
			State:  models.TaskStateFailed,
			Error:  "failed to enqueue task",
		}
		if serr := s.status.Set(ctx, failed); serr != nil {
			s.logger.WithError(models.ErrorInfo{Message: serr.Error()}).WithPayload(map[string]interface{}{
				"task_id": env.ID,
			}).Error("Failed to record enqueue failure")
		}
		return err
	}
	s.logger.WithPayload(map[string]interface{}{
		"task_id":   env.ID,
		"task_kind": string(env.Kind),
		"user_id":   env.UserID,
	}).Info("Task enqueued")
	return nil
}

// GetStatus returns the current status record for a task. Unknown ids read
// as queued, matching the broker's at-least-once window.
func (s *TaskService) GetStatus(ctx context.Context, taskID string) (*models.TaskStatusRecord, error) {
	return s.status.Get(ctx, taskID)
}

// WaitForResult blocks until the task reaches a terminal state or the wait
// window elapses, whichever comes first.
func (s *TaskService) WaitForResult(ctx context.Context, taskID string, timeout time.Duration) (*models.TaskStatusRecord, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		record, err := s.status.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if record.State.Terminal() {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrWaitTimeout
		case <-ticker.C:
		}
	}
}

// StreamUpdates subscribes to a user's update channel and forwards every
// payload over the user's WebSocket until the context ends or the
// connection drops.
func (s *TaskService) StreamUpdates(ctx context.Context, userID string, manager *ConnectionManager) error {
	sub := s.updates.Subscribe(ctx, userID)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !manager.SendMessage(userID, []byte(msg.Payload)) {
				return nil
			}
		}
	}
}
