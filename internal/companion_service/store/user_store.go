package store

import (
	"context"

	"github.com/irlmbm/companion-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserStore defines the read-only user lookup the worker needs.
type UserStore interface {
	// GetByID returns the user record, or nil if no such user exists.
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

// MongoUserStore is an implementation of UserStore using MongoDB.
type MongoUserStore struct {
	collection *mongo.Collection
}

// NewMongoUserStore creates a new MongoUserStore.
func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{
		collection: db.Collection("users"),
	}
}

// GetByID retrieves a user by its ID.
func (s *MongoUserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
