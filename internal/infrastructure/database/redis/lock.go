package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

var (
	// ErrLockNotAcquired is returned when every acquisition attempt failed.
	ErrLockNotAcquired = appErrors.New(appErrors.ErrCodeConflict, "failed to acquire lock")
	// ErrLockNotHeld is returned when releasing a lock owned by someone else.
	ErrLockNotHeld = appErrors.New(appErrors.ErrCodeConflict, "lock not held by this owner")
)

// ─────────────────────────────────────────────────────────────────────────────
// Interfaces
// ─────────────────────────────────────────────────────────────────────────────

// DistributedLock serialises work across processes.  The extraction worker
// takes one per document so at-least-once redelivery cannot run the same
// extraction twice concurrently.
type DistributedLock interface {
	// Lock blocks until the lock is acquired, the retry budget runs out or
	// ctx is cancelled.
	Lock(ctx context.Context) error
	// TryLock attempts a single acquisition.
	TryLock(ctx context.Context) (bool, error)
	// Unlock releases the lock if this instance still holds it.
	Unlock(ctx context.Context) error
	// Extend pushes the expiry out if this instance still holds the lock.
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
	// TTL reports the remaining lifetime of the lock key.
	TTL(ctx context.Context) (time.Duration, error)
}

// LockFactory builds named locks over a shared client.
type LockFactory interface {
	NewMutex(name string, opts ...LockOption) DistributedLock
}

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// LockOption customises a lock.
type LockOption func(*lockConfig)

// WithLockTTL sets how long an acquisition lasts without extension.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

// WithRetryDelay sets the pause between acquisition attempts.
func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

// WithRetryCount sets how many acquisition attempts Lock makes.
func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

// WithWatchdog enables background extension while the lock is held.
func WithWatchdog(enabled bool) LockOption {
	return func(c *lockConfig) { c.watchdogEnabled = enabled }
}

// WithWatchdogInterval sets how often the watchdog extends the lock.
func WithWatchdogInterval(interval time.Duration) LockOption {
	return func(c *lockConfig) { c.watchdogInterval = interval }
}

type lockConfig struct {
	ttl              time.Duration
	retryDelay       time.Duration
	retryCount       int
	watchdogEnabled  bool
	watchdogInterval time.Duration
}

// ─────────────────────────────────────────────────────────────────────────────
// Factory
// ─────────────────────────────────────────────────────────────────────────────

type redisLockFactory struct {
	client *Client
	log    logging.Logger
}

// NewLockFactory builds a LockFactory over the given client.
func NewLockFactory(client *Client, log logging.Logger) LockFactory {
	return &redisLockFactory{
		client: client,
		log:    log,
	}
}

func (f *redisLockFactory) NewMutex(name string, opts ...LockOption) DistributedLock {
	cfg := lockConfig{
		ttl:              30 * time.Second,
		retryDelay:       100 * time.Millisecond,
		retryCount:       30,
		watchdogInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.watchdogEnabled && cfg.watchdogInterval == 0 {
		cfg.watchdogInterval = cfg.ttl / 3
	}

	return &redisMutex{
		client: f.client,
		key:    buildLockKey(name),
		value:  uuid.New().String(),
		config: cfg,
		logger: f.log,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Mutex
// ─────────────────────────────────────────────────────────────────────────────

// redisMutex is a SetNX lock whose value identifies the holder, so release
// and extension only succeed for the instance that acquired it.
type redisMutex struct {
	client         *Client
	key            string
	value          string
	config         lockConfig
	logger         logging.Logger
	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
}

var mutexUnlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var mutexExtendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (m *redisMutex) Lock(ctx context.Context) error {
	for i := 0; i < m.config.retryCount; i++ {
		acquired, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

func (m *redisMutex) TryLock(ctx context.Context) (bool, error) {
	acquired, err := m.client.GetUnderlyingClient().SetNX(ctx, m.key, m.value, m.config.ttl).Result()
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to acquire lock")
	}
	if acquired && m.config.watchdogEnabled {
		m.startWatchdog()
	}
	return acquired, nil
}

func (m *redisMutex) Unlock(ctx context.Context) error {
	m.stopWatchdog()
	res, err := mutexUnlockScript.Run(ctx, m.client.GetUnderlyingClient(), []string{m.key}, m.value).Result()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to release lock")
	}
	if res.(int64) == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (m *redisMutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := mutexExtendScript.Run(ctx, m.client.GetUnderlyingClient(), []string{m.key}, m.value, ttl.Milliseconds()).Result()
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to extend lock")
	}
	return res.(int64) == 1, nil
}

func (m *redisMutex) TTL(ctx context.Context) (time.Duration, error) {
	ttl, err := m.client.GetUnderlyingClient().PTTL(ctx, m.key).Result()
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrCodeCacheError, "failed to read lock ttl")
	}
	return ttl, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Watchdog
// ─────────────────────────────────────────────────────────────────────────────

func (m *redisMutex) startWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogCancel = cancel
	m.watchdogDone = make(chan struct{})

	go runWatchdog(ctx, m.Extend, m.config.watchdogInterval, m.config.ttl, m.logger, m.watchdogDone)
}

func (m *redisMutex) stopWatchdog() {
	if m.watchdogCancel != nil {
		m.watchdogCancel()
		<-m.watchdogDone
		m.watchdogCancel = nil
	}
}

func runWatchdog(ctx context.Context, extend func(context.Context, time.Duration) (bool, error), interval, ttl time.Duration, log logging.Logger, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := extend(ctx, ttl)
			if err != nil {
				log.Error("Watchdog failed to extend lock", logging.Err(err))
				return
			}
			if !ok {
				log.Warn("Watchdog lost lock")
				return
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func buildLockKey(name string) string {
	return "legisgraph:lock:" + name
}
