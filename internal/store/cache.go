package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rcliao/call-screen/internal/model"
	"github.com/rcliao/call-screen/internal/phone"
)

const (
	cacheKeyPrefix = "caller:"
	// notFoundMarker is cached for numbers the backend has no record for.
	notFoundMarker = "-"

	DefaultCacheTTL = 10 * time.Minute

	// cacheOpTimeout bounds each cache round trip so a stalled redis
	// leaves most of a lookup's budget to the backend.
	cacheOpTimeout = 100 * time.Millisecond
)

func newRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  addr,
		DialTimeout:           time.Second,
		ReadTimeout:           cacheOpTimeout,
		WriteTimeout:          cacheOpTimeout,
		ContextTimeoutEnabled: true,
	})
}

// DialRedis connects to redis at addr and verifies the connection.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := newRedisClient(addr)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// CachedStore is a read-through redis cache in front of another
// Reputation. Redis faults are logged and bypassed; they never surface as
// ErrStoreUnavailable.
type CachedStore struct {
	backend Reputation
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCachedStore wraps backend with a redis cache. A zero ttl uses
// DefaultCacheTTL and a nil logger uses slog.Default().
func NewCachedStore(backend Reputation, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{backend: backend, client: client, ttl: ttl, logger: logger}
}

func cacheKey(number string) string {
	return cacheKeyPrefix + number
}

func (c *CachedStore) Lookup(ctx context.Context, number string) (*model.CallerRecord, error) {
	key := cacheKey(number)

	getCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	val, err := c.client.Get(getCtx, key).Result()
	cancel()
	switch {
	case err == nil:
		if val == notFoundMarker {
			return nil, ErrNotFound
		}
		var rec model.CallerRecord
		if err := json.Unmarshal([]byte(val), &rec); err == nil {
			return &rec, nil
		}
		c.logger.Warn("discarding corrupt cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("cache read failed, using backend", "key", key, "error", err)
	}

	rec, err := c.backend.Lookup(ctx, number)
	switch {
	case err == nil:
		data, _ := json.Marshal(rec)
		c.set(ctx, key, string(data))
	case errors.Is(err, ErrNotFound):
		c.set(ctx, key, notFoundMarker)
	}
	return rec, err
}

func (c *CachedStore) set(ctx context.Context, key, val string) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *CachedStore) Upsert(ctx context.Context, rec model.CallerRecord) error {
	if err := c.backend.Upsert(ctx, rec); err != nil {
		return err
	}
	key := cacheKey(phone.NormalizeString(rec.PhoneNumber))
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", "key", key, "error", err)
	}
	return nil
}

func (c *CachedStore) ListAll(ctx context.Context) ([]model.CallerRecord, error) {
	return c.backend.ListAll(ctx)
}
