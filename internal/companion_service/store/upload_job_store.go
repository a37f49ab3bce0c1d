package store

import (
	"context"
	"time"

	"github.com/irlmbm/companion-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UploadJobStore persists the progress of audio upload jobs.
type UploadJobStore interface {
	// Save upserts the job record keyed by request id.
	Save(ctx context.Context, job *models.UploadJobState) error
	// SetState advances the job's state and optionally records the remote URL.
	SetState(ctx context.Context, requestID string, state models.UploadState, remoteURL string) error
}

// MongoUploadJobStore is an implementation of UploadJobStore using MongoDB.
type MongoUploadJobStore struct {
	collection *mongo.Collection
}

// NewMongoUploadJobStore creates a new MongoUploadJobStore.
func NewMongoUploadJobStore(db *mongo.Database, collectionName string) *MongoUploadJobStore {
	return &MongoUploadJobStore{
		collection: db.Collection(collectionName),
	}
}

// Save upserts the full job record.
func (s *MongoUploadJobStore) Save(ctx context.Context, job *models.UploadJobState) error {
	job.UpdatedAt = time.Now().UTC()
	filter := bson.M{"_id": job.RequestID}
	update := bson.M{"$set": job}
	opts := options.Update().SetUpsert(true)
	_, err := s.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// SetState updates the state field of an existing job record.
func (s *MongoUploadJobStore) SetState(ctx context.Context, requestID string, state models.UploadState, remoteURL string) error {
	set := bson.M{
		"state":      state,
		"updated_at": time.Now().UTC(),
	}
	if remoteURL != "" {
		set["remote_url"] = remoteURL
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": requestID}, bson.M{"$set": set})
	return err
}
