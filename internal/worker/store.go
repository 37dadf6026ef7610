package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultDocumentPrefix is the key prefix of stored documents.
const DefaultDocumentPrefix = "extract:document:"

// ErrDocumentNotFound is returned when a referenced document is not stored.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentLoader resolves the document_key of a job.
type DocumentLoader interface {
	Load(ctx context.Context, key string) (string, error)
}

// RedisDocumentStore keeps documents as plain Redis strings.
type RedisDocumentStore struct {
	client *redis.Client
	prefix string
}

// NewRedisDocumentStore creates a document store. An empty prefix selects
// DefaultDocumentPrefix.
func NewRedisDocumentStore(client *redis.Client, prefix string) *RedisDocumentStore {
	if prefix == "" {
		prefix = DefaultDocumentPrefix
	}
	return &RedisDocumentStore{client: client, prefix: prefix}
}

// Load returns the document stored under key.
func (s *RedisDocumentStore) Load(ctx context.Context, key string) (string, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, key)
		}
		return "", fmt.Errorf("failed to load document: %w", err)
	}
	return data, nil
}
