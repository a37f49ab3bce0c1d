package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectInfo describes one stored audio object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// AudioStore is the remote object store for user recordings.
// Objects live under audio/{user_id}/ and are addressable at
// {publicURL}/{bucket}/{key}.
type AudioStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, userID string) ([]ObjectInfo, error)
	Remove(ctx context.Context, key string) error
	URL(key string) string
}

// MinioAudioStore is an implementation of AudioStore using MinIO.
type MinioAudioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioAudioStore creates a new MinioAudioStore.
func NewMinioAudioStore(client *minio.Client, bucket, publicURL string) *MinioAudioStore {
	return &MinioAudioStore{
		client:    client,
		bucket:    bucket,
		publicURL: publicURL,
	}
}

// Put uploads a single object, creating the bucket on first use.
func (s *MinioAudioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.ensureBucketExists(ctx); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object to MinIO: %w", err)
	}
	return nil
}

// List returns all objects under the user's audio prefix.
func (s *MinioAudioStore) List(ctx context.Context, userID string) ([]ObjectInfo, error) {
	prefix := fmt.Sprintf("audio/%s/", userID)
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}

	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, obj.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

// Remove deletes a single object.
func (s *MinioAudioStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// URL returns the public URL of an object.
func (s *MinioAudioStore) URL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)
}

// ensureBucketExists checks whether the bucket exists and creates it if not.
func (s *MinioAudioStore) ensureBucketExists(ctx context.Context) error {
	found, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket '%s' exists: %w", s.bucket, err)
	}
	if !found {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket '%s': %w", s.bucket, err)
		}
	}
	return nil
}
