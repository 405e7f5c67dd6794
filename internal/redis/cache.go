package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes
const (
	idempotencyPrefix = "idempotency:"
)

// CacheStore stores replayable HTTP responses in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// GetResponse retrieves the response recorded for an idempotency key.
// Returns nil on a cache miss.
func (s *CacheStore) GetResponse(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}
	return data, nil
}

// SetResponse records the response for an idempotency key unless one is
// already stored. It reports whether the value was written.
func (s *CacheStore) SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, idempotencyPrefix+key, data, ttl).Result()
}
