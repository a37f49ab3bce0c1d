package store

import (
	"context"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageStore defines the interface for conversation persistence.
type MessageStore interface {
	// EnsureThread creates the thread if it does not exist yet.
	EnsureThread(ctx context.Context, threadID, userID string) error
	// InsertPair atomically persists one turn: the user message and the AI reply.
	InsertPair(ctx context.Context, userMsg, aiMsg *models.Message) error
	// ListRecent returns up to limit messages of a thread, newest first.
	ListRecent(ctx context.Context, userID, threadID string, limit int) ([]*models.Message, error)
}

// MongoMessageStore is an implementation of MessageStore using MongoDB.
type MongoMessageStore struct {
	messages *mongo.Collection
	threads  *mongo.Collection
}

// NewMongoMessageStore creates a new MongoMessageStore.
func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{
		messages: db.Collection("messages"),
		threads:  db.Collection("threads"),
	}
}

// EnsureThread upserts the thread record, creating it on the first turn.
func (s *MongoMessageStore) EnsureThread(ctx context.Context, threadID, userID string) error {
	filter := bson.M{"_id": threadID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":    userID,
			"created_at": time.Now().UTC(),
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.threads.UpdateOne(ctx, filter, update, opts)
	return err
}

// InsertPair writes the user and AI message of one turn in a single
// ordered InsertMany, so a turn never leaves behind a lone message.
func (s *MongoMessageStore) InsertPair(ctx context.Context, userMsg, aiMsg *models.Message) error {
	docs := []interface{}{userMsg, aiMsg}
	opts := options.InsertMany().SetOrdered(true)
	_, err := s.messages.InsertMany(ctx, docs, opts)
	return err
}

// ListRecent returns up to limit messages for (user, thread), newest first.
// Timestamp ties are broken by _id so one call always sees a consistent order.
func (s *MongoMessageStore) ListRecent(ctx context.Context, userID, threadID string, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	opts.SetLimit(int64(limit))

	filter := bson.M{"user_id": userID, "thread_id": threadID}
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
