package redis

import (
	"context"
	"runtime"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

// newClosedClient builds a client around an address nothing listens on and
// closes it, so only the closed-state guards are exercised.
func newClosedClient(t *testing.T) *Client {
	t.Helper()
	c := &Client{
		rdb:    goredis.NewClient(&goredis.Options{Addr: "localhost:1"}),
		logger: logging.NewNopLogger(),
	}
	require.NoError(t, c.Close())
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// NewClient
// ─────────────────────────────────────────────────────────────────────────────

func TestNewClient_UnreachableServer(t *testing.T) {
	cfg := config.RedisConfig{
		Addr:        "localhost:1",
		DialTimeout: 500 * time.Millisecond,
	}

	client, err := NewClient(cfg, logging.NewNopLogger())

	require.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeCacheError))
	assert.Contains(t, err.Error(), "redis connection failed")
}

// ─────────────────────────────────────────────────────────────────────────────
// Closed-state guards
// ─────────────────────────────────────────────────────────────────────────────

func TestClient_CommandsAfterCloseFailFast(t *testing.T) {
	c := newClosedClient(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Ping(ctx), ErrClientClosed)
	assert.ErrorIs(t, c.Get(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, c.Set(ctx, "k", "v", time.Minute).Err(), ErrClientClosed)
	assert.ErrorIs(t, c.Del(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, c.Exists(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, c.Expire(ctx, "k", time.Minute).Err(), ErrClientClosed)
	assert.ErrorIs(t, c.TTL(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, c.Incr(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, c.Scan(ctx, 0, "k*", 10).Err(), ErrClientClosed)
}

func TestClient_CloseIdempotent(t *testing.T) {
	c := &Client{
		rdb:    goredis.NewClient(&goredis.Options{Addr: "localhost:1"}),
		logger: logging.NewNopLogger(),
	}

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

// ─────────────────────────────────────────────────────────────────────────────
// Defaults
// ─────────────────────────────────────────────────────────────────────────────

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	cfg := config.RedisConfig{}

	applyDefaults(&cfg)

	assert.Equal(t, 10*runtime.GOMAXPROCS(0), cfg.PoolSize)
	assert.Equal(t, 5, cfg.MinIdleConns)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := config.RedisConfig{
		PoolSize:     3,
		MinIdleConns: 1,
		DialTimeout:  time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 4 * time.Second,
	}

	applyDefaults(&cfg)

	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, 1, cfg.MinIdleConns)
	assert.Equal(t, time.Second, cfg.DialTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 4*time.Second, cfg.WriteTimeout)
}
