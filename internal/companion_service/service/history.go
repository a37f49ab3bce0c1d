package service

import (
	"context"

	"github.com/irlmbm/companion-backend/internal/models"
)

// RecentMessageLister is the slice of the message store the history
// builder depends on.
type RecentMessageLister interface {
	ListRecent(ctx context.Context, userID, threadID string, limit int) ([]*models.Message, error)
}

// HistoryBuilder assembles the bounded conversation context window
// handed to the model. The storage layer returns messages newest first;
// the builder reverses them to oldest first and maps stored message
// types onto model roles.
type HistoryBuilder struct {
	store RecentMessageLister
	limit int
}

// NewHistoryBuilder creates a HistoryBuilder with the given window limit.
func NewHistoryBuilder(store RecentMessageLister, limit int) *HistoryBuilder {
	return &HistoryBuilder{
		store: store,
		limit: limit,
	}
}

// Build returns at most limit turns for (user, thread), ordered oldest
// to newest. It holds no state between calls.
func (b *HistoryBuilder) Build(ctx context.Context, userID, threadID string) ([]models.ChatTurn, error) {
	msgs, err := b.store.ListRecent(ctx, userID, threadID, b.limit)
	if err != nil {
		return nil, err
	}
	if len(msgs) > b.limit {
		msgs = msgs[:b.limit]
	}

	turns := make([]models.ChatTurn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		role := models.SpeakerUser
		if msgs[i].Type == models.MessageTypeAI {
			role = models.SpeakerModel
		}
		turns = append(turns, models.ChatTurn{
			Role: role,
			Text: msgs[i].Content,
		})
	}
	return turns, nil
}
