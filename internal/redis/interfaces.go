package redis

import (
	"context"
	"time"

	"autodrive/internal/domain"
)

// LocationStoreInterface defines the interface for live vehicle positions.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, vehicleID string, p domain.Point, at time.Time) error
	Positions(ctx context.Context, vehicleIDs []string) (map[string]domain.Point, error)
	RemoveLocation(ctx context.Context, vehicleID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// CacheStoreInterface defines the interface for idempotent response replay.
type CacheStoreInterface interface {
	GetResponse(ctx context.Context, key string) ([]byte, error)
	SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error)
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ CacheStoreInterface    = (*CacheStore)(nil)
)
