package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/intelligence/annotate"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

const (
	annotationKeyPrefix       = "annotation:"
	defaultAnnotationCacheTTL = 24 * time.Hour
)

// AnnotationCache stores raw annotation server responses keyed by chunk
// content hash.  Bodies are cached verbatim, so a hit replays the exact
// response the server produced for identical text.
type AnnotationCache struct {
	client     *Client
	prefix     string
	defaultTTL time.Duration
	logger     logging.Logger
}

var _ annotate.ResponseCache = (*AnnotationCache)(nil)

// NewAnnotationCache builds the annotation response cache.  Key prefix and
// default retention come from the Redis configuration.
func NewAnnotationCache(client *Client, cfg config.RedisConfig, log logging.Logger) *AnnotationCache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultAnnotationCacheTTL
	}
	return &AnnotationCache{
		client:     client,
		prefix:     prefix + annotationKeyPrefix,
		defaultTTL: ttl,
		logger:     log,
	}
}

// Get returns the cached response body for key.  The second return reports
// whether the key was present.
func (c *AnnotationCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to read annotation cache")
	}
	return body, true, nil
}

// Set stores body under key.  A zero ttl uses the configured default.
func (c *AnnotationCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.prefix+key, body, ttl).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to write annotation cache")
	}
	return nil
}
