// Package minio provides object storage for raw bill sources and exported
// extraction artifacts.  Three buckets are provisioned from a common prefix:
// documents holds uploaded sources, exports holds per-run result artifacts,
// and temp holds disposable objects that expire through a bucket lifecycle
// rule.
package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

const (
	defaultBucketPrefix   = "legisgraph"
	defaultPresignExpiry  = 15 * time.Minute
	defaultTempExpiryDays = 7
	connectTimeout        = 10 * time.Second

	// noSuchKey is the S3 error code for a missing object.
	noSuchKey = "NoSuchKey"
)

// ─────────────────────────────────────────────────────────────────────────────
// STORAGE API
// ─────────────────────────────────────────────────────────────────────────────

// StorageAPI is the subset of the minio-go client this layer uses.
// *minio.Client satisfies it; tests substitute a mock.
type StorageAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// BUCKETS
// ─────────────────────────────────────────────────────────────────────────────

// Buckets names the three buckets the storage layer owns.
type Buckets struct {
	Documents string
	Exports   string
	Temp      string
}

// BucketsForPrefix derives the bucket names from the configured prefix.
func BucketsForPrefix(prefix string) Buckets {
	if prefix == "" {
		prefix = defaultBucketPrefix
	}
	return Buckets{
		Documents: prefix + "-documents",
		Exports:   prefix + "-exports",
		Temp:      prefix + "-temp",
	}
}

func (b Buckets) all() []string {
	return []string{b.Documents, b.Exports, b.Temp}
}

// ─────────────────────────────────────────────────────────────────────────────
// CLIENT
// ─────────────────────────────────────────────────────────────────────────────

// Client wraps the minio connection and owns bucket provisioning.
type Client struct {
	api     StorageAPI
	cfg     config.MinIOConfig
	buckets Buckets
	logger  logging.Logger
}

// NewClient connects to the configured endpoint, verifies reachability and
// provisions the buckets, including the temp expiry lifecycle.
func NewClient(cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, appErrors.New(appErrors.ErrCodeValidation, "minio endpoint is required")
	}

	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeInternal, "failed to build minio client")
	}

	client := &Client{
		api:     api,
		cfg:     cfg,
		buckets: BucketsForPrefix(cfg.BucketPrefix),
		logger:  log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		return nil, err
	}
	if err := client.EnsureBuckets(ctx); err != nil {
		return nil, err
	}

	log.Info("MinIO client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.Bool("ssl", cfg.UseSSL),
		logging.String("bucket_prefix", cfg.BucketPrefix),
	)
	return client, nil
}

// GetClient exposes the underlying storage API.
func (c *Client) GetClient() StorageAPI {
	return c.api
}

// Buckets returns the provisioned bucket names.
func (c *Client) Buckets() Buckets {
	return c.buckets
}

// Ping verifies the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListBuckets(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeServiceUnavailable, "minio ping failed")
	}
	return nil
}

// Close releases the client.  minio-go holds no persistent connection, so
// this only exists for lifecycle symmetry with the other stores.
func (c *Client) Close() error {
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// BUCKET PROVISIONING
// ─────────────────────────────────────────────────────────────────────────────

// EnsureBuckets creates any missing bucket and applies the temp expiry rule.
// Safe to run at every startup.
func (c *Client) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range c.buckets.all() {
		exists, err := c.api.BucketExists(ctx, bucket)
		if err != nil {
			return appErrors.Wrapf(err, appErrors.ErrCodeBucketSetup, "failed to check bucket %s", bucket)
		}
		if exists {
			continue
		}
		if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			// Another instance may create the bucket between the exists
			// check and ours.
			code := minio.ToErrorResponse(err).Code
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				continue
			}
			return appErrors.Wrapf(err, appErrors.ErrCodeBucketSetup, "failed to create bucket %s", bucket)
		}
		c.logger.Info("Storage bucket created", logging.String("bucket", bucket))
	}

	c.applyTempLifecycle(ctx)
	return nil
}

// applyTempLifecycle sets the expiry rule on the temp bucket.  Failures are
// logged rather than fatal; objects then simply outlive their welcome.
func (c *Client) applyTempLifecycle(ctx context.Context) {
	days := c.cfg.TempExpiryDays
	if days <= 0 {
		days = defaultTempExpiryDays
	}

	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:         "temp-expiry",
			Status:     "Enabled",
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(days)},
		},
	}

	if err := c.api.SetBucketLifecycle(ctx, c.buckets.Temp, lc); err != nil {
		c.logger.Warn("Failed to set temp bucket lifecycle",
			logging.String("bucket", c.buckets.Temp),
			logging.Err(err),
		)
		return
	}
	c.logger.Debug("Temp bucket lifecycle applied",
		logging.String("bucket", c.buckets.Temp),
		logging.Int("expiry_days", days),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// HEALTH
// ─────────────────────────────────────────────────────────────────────────────

// HealthStatus reports endpoint reachability and per-bucket presence.
type HealthStatus struct {
	Healthy bool
	Latency time.Duration
	Buckets map[string]bool
	Error   string
}

// HealthCheck probes the endpoint and verifies every bucket still exists.
func (c *Client) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	_, err := c.api.ListBuckets(ctx)

	status := &HealthStatus{
		Healthy: err == nil,
		Latency: time.Since(start),
		Buckets: make(map[string]bool),
	}
	if err != nil {
		status.Error = err.Error()
		return status
	}

	for _, bucket := range c.buckets.all() {
		exists, err := c.api.BucketExists(ctx, bucket)
		status.Buckets[bucket] = err == nil && exists
		if !status.Buckets[bucket] {
			status.Healthy = false
			status.Error = "bucket " + bucket + " missing"
		}
	}
	return status
}
