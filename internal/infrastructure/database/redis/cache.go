package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// ErrCacheMiss is returned when a key is absent or negatively cached.
var ErrCacheMiss = appErrors.New(appErrors.ErrCodeNotFound, "cache miss")

const (
	defaultCachePrefix  = "legisgraph:"
	defaultCacheTTL     = 15 * time.Minute
	defaultNullCacheTTL = 30 * time.Second

	// nullValue marks keys whose loader produced no result, so repeated
	// lookups do not hammer the backing store.
	nullValue = "__null__"

	scanBatchSize = 100
)

// ─────────────────────────────────────────────────────────────────────────────
// Interfaces
// ─────────────────────────────────────────────────────────────────────────────

// Serializer converts cached values to and from bytes.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonSerializer) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Cache is the typed caching facade over Redis.
type Cache interface {
	// Get loads the value stored under key into dest.  Absent and
	// negatively cached keys return ErrCacheMiss.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores value under key.  A nil value writes the negative cache
	// sentinel, a zero ttl uses the cache default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// GetOrSet returns the cached value or runs loader once per key across
	// concurrent callers, caching whatever it produced.
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	// DeleteByPrefix removes every key sharing the given logical prefix and
	// reports how many were deleted.
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	// Expire resets the ttl for key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL reports the remaining lifetime of key.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Ping checks the backing connection.
	Ping(ctx context.Context) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// CacheOption customises a Cache.
type CacheOption func(*cache)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *cache) {
		c.prefix = prefix
	}
}

// WithDefaultTTL overrides the ttl used when Set receives zero.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *cache) {
		c.defaultTTL = ttl
	}
}

// WithSerializer overrides the value serializer.
func WithSerializer(s Serializer) CacheOption {
	return func(c *cache) {
		c.serializer = s
	}
}

// WithNullCacheTTL overrides how long negative results are remembered.
func WithNullCacheTTL(ttl time.Duration) CacheOption {
	return func(c *cache) {
		c.nullCacheTTL = ttl
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Implementation
// ─────────────────────────────────────────────────────────────────────────────

type cache struct {
	client       *Client
	prefix       string
	defaultTTL   time.Duration
	nullCacheTTL time.Duration
	serializer   Serializer
	sf           singleflight.Group
	logger       logging.Logger
}

// NewCache builds a Cache over the given client.
func NewCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	c := &cache{
		client:       client,
		prefix:       defaultCachePrefix,
		defaultTTL:   defaultCacheTTL,
		nullCacheTTL: defaultNullCacheTTL,
		serializer:   jsonSerializer{},
		logger:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to read cache key")
	}
	if string(data) == nullValue {
		return ErrCacheMiss
	}
	if err := c.serializer.Unmarshal(data, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode cached value")
	}
	return nil
}

func (c *cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if value == nil {
		return c.setRaw(ctx, key, []byte(nullValue), c.nullCacheTTL)
	}
	data, err := c.serializer.Marshal(value)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode cache value")
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.setRaw(ctx, key, data, jitterTTL(ttl))
}

func (c *cache) setRaw(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.fullKey(key), data, ttl).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to write cache key")
	}
	return nil
}

func (c *cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = c.fullKey(key)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to delete cache keys")
	}
	return nil
}

func (c *cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.fullKey(key)).Result()
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to check cache key")
	}
	return n > 0, nil
}

func (c *cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if err != ErrCacheMiss {
		c.logger.Warn("Cache read failed, falling through to loader",
			logging.String("key", key),
			logging.Err(err))
	}

	// The loader runs once per key no matter how many callers race here.
	// The winner returns serialized bytes so every waiter can decode into
	// its own dest.
	data, err, _ := c.sf.Do(c.fullKey(key), func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if value == nil {
			if err := c.setRaw(ctx, key, []byte(nullValue), c.nullCacheTTL); err != nil {
				c.logger.Warn("Failed to negative-cache empty result",
					logging.String("key", key),
					logging.Err(err))
			}
			return nil, ErrCacheMiss
		}
		if err := c.Set(ctx, key, value, ttl); err != nil {
			c.logger.Warn("Failed to cache loaded value",
				logging.String("key", key),
				logging.Err(err))
		}
		return c.serializer.Marshal(value)
	})
	if err != nil {
		return err
	}
	raw, ok := data.([]byte)
	if !ok {
		return appErrors.New(appErrors.ErrCodeInternal, "unexpected loader result type")
	}
	if err := c.serializer.Unmarshal(raw, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode loaded value")
	}
	return nil
}

func (c *cache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	pattern := c.fullKey(prefix) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deleted, appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to scan cache keys")
		}
		if len(keys) > 0 {
			// Scan returns full keys, so bypass the prefixing Delete.
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to delete cache keys")
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (c *cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Expire(ctx, c.fullKey(key), ttl).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to expire cache key")
	}
	return nil
}

func (c *cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, c.fullKey(key)).Result()
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to read cache key ttl")
	}
	return ttl, nil
}

func (c *cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func (c *cache) fullKey(key string) string {
	return c.prefix + key
}

// jitterTTL spreads expirations by up to ±10% so batches written together
// do not expire together.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	span := int64(ttl) / 5
	if span <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(span)) - ttl/10
}
