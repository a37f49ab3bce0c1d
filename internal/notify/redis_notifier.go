package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// RedisNotifier implements Notifier and StatusStore on top of Redis.
// Status records live under task:{id}:status; update events are published
// on user:{id}:updates. Terminal records expire after statusTTL so the
// result backend does not grow without bound.
type RedisNotifier struct {
	client    *redis.Client
	statusTTL time.Duration
	logger    *logger.Logger
}

// NewRedisNotifier creates a new RedisNotifier.
func NewRedisNotifier(client *redis.Client, statusTTL time.Duration, logger *logger.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:    client,
		statusTTL: statusTTL,
		logger:    logger,
	}
}

// Publish sends a status record to the user's update channel as JSON.
func (n *RedisNotifier) Publish(ctx context.Context, userID string, record *models.TaskStatusRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, UserChannel(userID), payload).Err()
}

// Set writes a status record. Records in a terminal state carry the
// configured TTL; in-flight records are overwritten by the terminal write
// and inherit its expiry.
func (n *RedisNotifier) Set(ctx context.Context, record *models.TaskStatusRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if record.State.Terminal() {
		ttl = n.statusTTL
	}
	return n.client.Set(ctx, StatusKey(record.TaskID), payload, ttl).Err()
}

// Get returns the last known status record for a task id,
// defaulting to Queued for ids that have never been seen.
func (n *RedisNotifier) Get(ctx context.Context, taskID string) (*models.TaskStatusRecord, error) {
	payload, err := n.client.Get(ctx, StatusKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &models.TaskStatusRecord{TaskID: taskID, State: models.TaskStateQueued}, nil
	}
	if err != nil {
		return nil, err
	}

	var record models.TaskStatusRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// pubSubSubscription adapts *redis.PubSub to the Subscription interface:
// the library's Channel method is variadic, the interface's is not.
type pubSubSubscription struct {
	*redis.PubSub
}

func (s pubSubSubscription) Channel() <-chan *redis.Message {
	return s.PubSub.Channel()
}

// Subscribe opens a subscription on the user's update channel.
// The caller owns the returned subscription and must Close it.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID string) Subscription {
	return pubSubSubscription{n.client.Subscribe(ctx, UserChannel(userID))}
}
