package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// RateLimitConfig holds configuration for the per-client token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained refill rate per client.
	RequestsPerSecond float64

	// Burst is the bucket capacity per client.
	Burst int

	// CleanupInterval controls how often idle client buckets are evicted.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the limiter configuration used when the
// router is given none.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		Burst:             100,
		CleanupInterval:   5 * time.Minute,
	}
}

// bucket is one client's token bucket state.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	lastCleanup time.Time
}

// NewRateLimiter builds a limiter. Non-positive rate or burst values fall
// back to the defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	return &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one token for key, reporting whether the request may
// proceed.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeCleanup(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst)}
		l.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.cfg.RequestsPerSecond
		if b.tokens > float64(l.cfg.Burst) {
			b.tokens = float64(l.cfg.Burst)
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// maybeCleanup drops buckets idle long enough to have refilled completely.
// Caller holds the mutex.
func (l *RateLimiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < l.cfg.CleanupInterval {
		return
	}
	l.lastCleanup = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.CleanupInterval {
			delete(l.buckets, key)
		}
	}
}

// Handler returns middleware rejecting over-limit clients with 429.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    string(appErrors.ErrCodeTooManyRequests),
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
