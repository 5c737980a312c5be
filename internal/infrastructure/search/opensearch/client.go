// Package opensearch provides the search client, the index manager and the
// searcher backing full-text lookup of canonical entities and relations.
// Each extraction run replaces the indexed rows for its document, so the
// indices always mirror the latest canonical output.
package opensearch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

const (
	defaultMaxRetries          = 3
	defaultRetryBackoff        = 100 * time.Millisecond
	defaultMaxIdleConnsPerHost = 10
	connectTimeout             = 5 * time.Second
	healthCheckInterval        = 30 * time.Second
)

// ─────────────────────────────────────────────────────────────────────────────
// Client
// ─────────────────────────────────────────────────────────────────────────────

// Client wraps the OpenSearch client with a background health probe so the
// readiness endpoint can report cluster state without issuing a request.
type Client struct {
	client  *opensearch.Client
	cfg     config.OpenSearchConfig
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient connects to OpenSearch and verifies the cluster with a ping.
func NewClient(cfg config.OpenSearchConfig, log logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "at least one opensearch address is required")
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.User,
		Password:   cfg.Password,
		Transport:  transport,
		MaxRetries: defaultMaxRetries,
		RetryBackoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * defaultRetryBackoff
		},
		RetryOnStatus: []int{429, 502, 503, 504},
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeInternal, "failed to build opensearch client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		client: osClient,
		cfg:    cfg,
		logger: log,
		cancel: cancel,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, connectTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx); err != nil {
		cancel()
		return nil, err
	}

	go client.watchHealth(ctx)

	log.Info("OpenSearch client connected",
		logging.Strings("addresses", cfg.Addresses))

	return client, nil
}

// Ping checks the cluster and records the outcome for IsHealthy.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		return appErrors.Wrap(err, appErrors.ErrCodeServiceUnavailable, "opensearch ping failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		return appErrors.Newf(appErrors.ErrCodeServiceUnavailable, "opensearch ping returned status %d", resp.StatusCode)
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the result of the most recent ping.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// GetClient returns the underlying OpenSearch client.
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// Close stops the health probe. Safe to call more than once.
func (c *Client) Close() error {
	c.cancel()
	c.logger.Info("OpenSearch client closed")
	return nil
}

func (c *Client) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()

			if prev && !curr {
				c.logger.Error("OpenSearch cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("OpenSearch cluster recovered")
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// decodeError turns a non-2xx response into an AppError carrying the
// cluster's own error type and reason when the body holds one.
func decodeError(resp *opensearchapi.Response, code appErrors.ErrorCode, msg string) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Reason != "" {
		return appErrors.Newf(code, "%s: %s: %s", msg, errResp.Error.Type, errResp.Error.Reason)
	}

	return appErrors.Newf(code, "%s: status %d", msg, resp.StatusCode)
}
