// Package config provides configuration loading, defaults, and validation for
// the LegisGraph platform.
package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultGRPCHost = "0.0.0.0"
	DefaultGRPCPort = 9090

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "legisgraph"
	DefaultDBName     = "legisgraph"
	DefaultDBMaxConns = 25

	DefaultNeo4jURI       = "bolt://localhost:7687"
	DefaultNeo4jUser      = "neo4j"
	DefaultNeo4jDatabase  = "neo4j"
	DefaultNeo4jBatchSize = 500

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisDB        = 0
	DefaultRedisKeyPrefix = "legisgraph:"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "legisgraph-workers"

	DefaultOpenSearchAddress = "http://localhost:9200"
	DefaultIndexPrefix       = "legisgraph"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultBucketPrefix  = "legisgraph"

	DefaultAnnotationURL     = "http://localhost:9000"
	DefaultAnnotationTimeout = 30 * time.Second

	DefaultPipelineMode         = PipelineModeRemoteFirst
	DefaultMaxChunkChars        = 2000
	DefaultPipelineParallelism  = 1
	DefaultEntityContextChars   = 50
	DefaultRelationContextChars = 100

	DefaultWorkerConcurrency = 10

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "legisgraph"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.  Fields
// already set by the caller are left unchanged so that explicit configuration
// always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// ── GRPC ──────────────────────────────────────────────────────────────────
	if cfg.GRPC.Host == "" {
		cfg.GRPC.Host = DefaultGRPCHost
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.User == "" {
		cfg.Neo4j.User = DefaultNeo4jUser
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = DefaultNeo4jDatabase
	}
	if cfg.Neo4j.BatchSize == 0 {
		cfg.Neo4j.BatchSize = DefaultNeo4jBatchSize
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = 30 * time.Second
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 24 * time.Hour
	}
	// DB is an int; 0 is a valid explicit value so we cannot distinguish "not
	// set" from "set to 0".  We leave it as-is (0 is also the default).

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddress}
	}
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultIndexPrefix
	}
	if cfg.OpenSearch.BulkBatchSize == 0 {
		cfg.OpenSearch.BulkBatchSize = 500
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.BucketPrefix == "" {
		cfg.MinIO.BucketPrefix = DefaultBucketPrefix
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = 15 * time.Minute
	}
	if cfg.MinIO.TempExpiryDays == 0 {
		cfg.MinIO.TempExpiryDays = 7
	}

	// ── Annotation ────────────────────────────────────────────────────────────
	if cfg.Annotation.ServerURL == "" {
		cfg.Annotation.ServerURL = DefaultAnnotationURL
	}
	if cfg.Annotation.Timeout == 0 {
		cfg.Annotation.Timeout = DefaultAnnotationTimeout
	}
	if cfg.Annotation.CacheTTL == 0 {
		cfg.Annotation.CacheTTL = 24 * time.Hour
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	if cfg.Pipeline.Mode == "" {
		cfg.Pipeline.Mode = DefaultPipelineMode
	}
	if cfg.Pipeline.MaxChunkChars == 0 {
		cfg.Pipeline.MaxChunkChars = DefaultMaxChunkChars
	}
	if cfg.Pipeline.Parallelism == 0 {
		cfg.Pipeline.Parallelism = DefaultPipelineParallelism
	}
	if cfg.Pipeline.EntityContextChars == 0 {
		cfg.Pipeline.EntityContextChars = DefaultEntityContextChars
	}
	if cfg.Pipeline.RelationContextChars == 0 {
		cfg.Pipeline.RelationContextChars = DefaultRelationContextChars
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = time.Second
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
