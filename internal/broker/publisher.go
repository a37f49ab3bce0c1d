package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Publisher is the interface for enqueueing task envelopes onto the broker.
type Publisher interface {
	Publish(ctx context.Context, envelope *models.TaskEnvelope) error
	Close() error
}

// NewEnvelope builds a TaskEnvelope for the given kind and payload.
// The payload is serialized to JSON so the envelope can cross the broker as-is.
func NewEnvelope(kind models.TaskKind, payload interface{}, userID, requestID, threadID string) (*models.TaskEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return &models.TaskEnvelope{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   raw,
		UserID:    userID,
		RequestID: requestID,
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// KafkaPublisher publishes task envelopes to the Kafka tasks topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewKafkaPublisher creates a new KafkaPublisher on top of an existing writer.
func NewKafkaPublisher(writer *kafka.Writer, logger *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish sends a task envelope to the Kafka tasks topic.
// Envelopes for the same thread share a message key so they land on the
// same partition and keep their submission order.
func (p *KafkaPublisher) Publish(ctx context.Context, envelope *models.TaskEnvelope) error {
	msgBytes, err := json.Marshal(envelope)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal task envelope for Kafka")
		return err
	}

	key := envelope.ThreadID
	if key == "" {
		key = envelope.ID
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"topic": p.writer.Topic}).Error("Failed to write message to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
