package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/plate-scan/internal/logging"
	"github.com/example/plate-scan/internal/metrics"
	"github.com/example/plate-scan/internal/registry"
)

// Cache abstracts the Redis operations used by the cached gateway.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// CachedGateway serves repeated matches from Redis and coalesces concurrent
// lookups of one plate. Only matches are cached; a miss may be registered a
// moment later. Cache trouble falls through to the wrapped gateway.
type CachedGateway struct {
	next           Gateway
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	metrics        *metrics.Scanner
	group          singleflight.Group
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCachedGateway wraps next with cache.
func NewCachedGateway(next Gateway, cache Cache, ttl time.Duration, logger *zap.Logger, m *metrics.Scanner) *CachedGateway {
	return &CachedGateway{
		next:           next,
		cache:          cache,
		ttl:            ttl,
		logger:         logger.Named("lookup_cache"),
		metrics:        m,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func cacheKey(plate string) string {
	return fmt.Sprintf("vehicle:%s", plate)
}

// Lookup returns the cached record for plate or asks the wrapped gateway.
func (g *CachedGateway) Lookup(ctx context.Context, plate string) (*registry.Vehicle, error) {
	key := cacheKey(plate)
	opLogger := logging.WithOperation(g.logger, "lookup.cached", "").With(zap.String("plate", plate))

	cached, err := g.withRedisGet(ctx, "cache.get.vehicle", key)
	switch {
	case err == nil:
		var v registry.Vehicle
		if err := json.Unmarshal([]byte(cached), &v); err == nil {
			g.metrics.ObserveCache("hit")
			return &v, nil
		}
		opLogger.Warn("failed to decode cached vehicle", zap.Error(err))
		g.metrics.ObserveCache("error")
	case errors.Is(err, redis.Nil):
		g.metrics.ObserveCache("miss")
	default:
		opLogger.Warn("failed to read cache", zap.Error(err))
		g.metrics.ObserveCache("error")
	}

	res, err, shared := g.group.Do(plate, func() (interface{}, error) {
		return g.next.Lookup(ctx, plate)
	})
	if err != nil {
		return nil, err
	}
	vehicle := res.(*registry.Vehicle)
	if shared {
		opLogger.Debug("lookup shared with concurrent caller")
	}

	serialized, err := json.Marshal(vehicle)
	if err != nil {
		opLogger.Error("failed to serialize vehicle", zap.Error(err))
		return vehicle, nil
	}
	if err := g.withRedisRetry(ctx, "cache.set.vehicle", func() error {
		return g.cache.Set(ctx, key, string(serialized), g.ttl)
	}); err != nil {
		opLogger.Warn("failed to cache vehicle", zap.Error(err))
	}
	return vehicle, nil
}

func (g *CachedGateway) withRedisRetry(ctx context.Context, operation string, fn func() error) error {
	if g.retryAttempts <= 1 {
		return logging.NewOperationError(operation, "", fn())
	}

	backoff := g.initialBackoff
	opLogger := logging.WithOperation(g.logger, operation, "")
	var err error
	for attempt := 0; attempt < g.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, "", ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= g.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, "", err)
		}
		if !isTransientError(err) || attempt == g.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, "", err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, "", err)
}

func (g *CachedGateway) withRedisGet(ctx context.Context, operation, key string) (string, error) {
	var result string
	err := g.withRedisRetry(ctx, operation, func() error {
		value, err := g.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
