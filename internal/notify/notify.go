package notify

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/irlmbm/companion-backend/internal/models"
)

// Notifier publishes task outcomes on a per-user update channel.
// Delivery is at-most-once and non-durable: a consumer that is not
// subscribed at publish time misses the event and must poll instead.
type Notifier interface {
	Publish(ctx context.Context, userID string, record *models.TaskStatusRecord) error
}

// StatusStore is the pollable projection of task outcomes.
// Get returns a Queued record for task ids it has never seen.
type StatusStore interface {
	Set(ctx context.Context, record *models.TaskStatusRecord) error
	Get(ctx context.Context, taskID string) (*models.TaskStatusRecord, error)
}

// Subscription is a live feed of one user's update events.
// The subscriber owns it and must Close it when done.
type Subscription interface {
	Channel() <-chan *redis.Message
	Close() error
}

// Subscriber opens subscriptions on per-user update channels.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) Subscription
}

// UserChannel returns the per-user pub/sub channel name.
func UserChannel(userID string) string {
	return "user:" + userID + ":updates"
}

// StatusKey returns the storage key of a task status record.
func StatusKey(taskID string) string {
	return "task:" + taskID + ":status"
}
