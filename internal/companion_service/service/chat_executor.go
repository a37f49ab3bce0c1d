package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/irlmbm/companion-backend/internal/companion_service/store"
	"github.com/irlmbm/companion-backend/internal/llm"
	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"

	"github.com/google/uuid"
)

// SystemPrompt is the fixed instruction handed to the model on every turn.
const SystemPrompt = "You are a helpful and friendly AI companion. Keep responses concise and engaging."

// ChatExecutor runs chat_turn tasks: resolve the user, build the
// conversation window, call the model and persist the resulting
// message pair. A failed model call after the history was read
// persists nothing.
type ChatExecutor struct {
	users    store.UserStore
	messages store.MessageStore
	history  *HistoryBuilder
	llm      llm.LLM
	locks    *threadLocks
	logger   *logger.Logger
}

// NewChatExecutor creates a new ChatExecutor.
func NewChatExecutor(users store.UserStore, messages store.MessageStore, history *HistoryBuilder, model llm.LLM, logger *logger.Logger) *ChatExecutor {
	return &ChatExecutor{
		users:    users,
		messages: messages,
		history:  history,
		llm:      model,
		locks:    newThreadLocks(),
		logger:   logger,
	}
}

// Execute runs one chat turn attempt.
func (e *ChatExecutor) Execute(ctx context.Context, envelope *models.TaskEnvelope) (*models.TaskResult, error) {
	var payload models.ChatTurnPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, Permanent(fmt.Errorf("%w: malformed chat payload: %v", ErrValidation, err))
	}
	if strings.TrimSpace(payload.Message) == "" {
		return nil, Permanent(fmt.Errorf("%w: empty message", ErrValidation))
	}

	threadID := envelope.ThreadID
	if threadID == "" {
		// The gateway defaults the thread id per session; envelopes from
		// other producers still get a fresh thread here.
		threadID = uuid.New().String()
	}

	// Serialize turns on one thread so history reads and pair writes
	// cannot interleave across concurrent tasks.
	unlock := e.locks.Lock(threadID)
	defer unlock()

	user, err := e.users.GetByID(ctx, envelope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", envelope.UserID, err)
	}
	if user == nil {
		return nil, Permanent(fmt.Errorf("%w: %s", ErrUserNotFound, envelope.UserID))
	}

	if err := e.messages.EnsureThread(ctx, threadID, envelope.UserID); err != nil {
		return nil, fmt.Errorf("failed to ensure thread %s: %w", threadID, err)
	}

	window, err := e.history.Build(ctx, envelope.UserID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to build history window: %w", err)
	}

	resp, err := e.llm.GenerateContent(ctx, &models.GenerateContentRequest{
		History: window,
		Message: payload.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	now := time.Now().UTC()
	userMsg := &models.Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		UserID:    envelope.UserID,
		Type:      models.MessageTypeUser,
		Content:   payload.Message,
		RequestID: envelope.RequestID,
		Timestamp: now,
	}
	aiMsg := &models.Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		UserID:    envelope.UserID,
		Type:      models.MessageTypeAI,
		Content:   resp.Text,
		RequestID: envelope.RequestID,
		// The reply timestamps strictly after the user message so the
		// window builder sees the pair in turn order.
		Timestamp: now.Add(time.Millisecond),
	}

	if err := e.messages.InsertPair(ctx, userMsg, aiMsg); err != nil {
		return nil, fmt.Errorf("failed to persist message pair: %w", err)
	}

	return &models.TaskResult{
		Success:   true,
		Message:   resp.Text,
		RequestID: envelope.RequestID,
		Timestamp: now,
	}, nil
}
