package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"autodrive/internal/config"
	internalRedis "autodrive/internal/redis"
)

// liveLocationMaxAge is how long a telemetry position stays usable for matching.
const liveLocationMaxAge = 2 * time.Minute

// RedisStores bundles the Redis-backed stores used by services and middleware.
type RedisStores struct {
	Locations *internalRedis.LocationStore
	Locks     *internalRedis.LockStore
	Cache     *internalRedis.CacheStore
}

// NewRedisClient creates a new Redis client with optional New Relic instrumentation.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if nrApp != nil {
		client.AddHook(&nrRedisHook{})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisStores creates the stores sharing one client.
func NewRedisStores(client *redis.Client) RedisStores {
	return RedisStores{
		Locations: internalRedis.NewLocationStore(client, liveLocationMaxAge),
		Locks:     internalRedis.NewLockStore(client),
		Cache:     internalRedis.NewCacheStore(client),
	}
}

// nrRedisHook records Redis commands as New Relic datastore segments on the
// transaction carried by the context.
type nrRedisHook struct{}

func (h *nrRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *nrRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if txn := newrelic.FromContext(ctx); txn != nil {
			segment := newrelic.DatastoreSegment{
				StartTime:  txn.StartSegmentNow(),
				Product:    newrelic.DatastoreRedis,
				Operation:  cmd.Name(),
				Collection: keyspace(cmd),
			}
			defer segment.End()
		}
		return next(ctx, cmd)
	}
}

func (h *nrRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if txn := newrelic.FromContext(ctx); txn != nil && len(cmds) > 0 {
			segment := newrelic.DatastoreSegment{
				StartTime:  txn.StartSegmentNow(),
				Product:    newrelic.DatastoreRedis,
				Operation:  "pipeline",
				Collection: keyspace(cmds[0]),
			}
			defer segment.End()
		}
		return next(ctx, cmds)
	}
}

// keyspace returns the prefix of the command's first key, e.g. "lock" for
// "lock:settlement:release:t1".
func keyspace(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return "redis"
	}
	key, ok := args[1].(string)
	if !ok || key == "" {
		return "redis"
	}
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
