package prometheus

import (
	"fmt"
	"time"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPRequestSize     HistogramVec
	HTTPResponseSize    HistogramVec
	HTTPActiveRequests  GaugeVec

	// Extraction pipeline
	ExtractionRunsTotal     CounterVec
	ExtractionRunDuration   HistogramVec
	ChunksProcessedTotal    CounterVec
	ChunkDuration           HistogramVec
	FallbackChunksTotal     CounterVec
	EntitiesExtractedTotal  CounterVec
	RelationsExtractedTotal CounterVec
	DroppedEntitiesTotal    CounterVec

	// Annotation client
	AnnotationRequestsTotal CounterVec
	AnnotationDuration      HistogramVec

	// Ingestion
	DocumentIngestTotal    CounterVec
	DocumentIngestDuration HistogramVec

	// Graph export
	GraphNodesTotal     GaugeVec
	GraphEdgesTotal     GaugeVec
	GraphExportDuration HistogramVec
	GraphQueryDuration  HistogramVec

	// Search indexing
	SearchIndexDuration HistogramVec
	SearchQueryDuration HistogramVec

	// Infrastructure Layer
	DBConnectionPoolSize   GaugeVec
	DBConnectionPoolActive GaugeVec
	DBQueryDuration        HistogramVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	MessageQueueDepth      GaugeVec
	MessageProcessDuration HistogramVec
	JobRetriesTotal        CounterVec
	DeadLetterTotal        CounterVec

	// System Health
	ServiceUptime     GaugeVec
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default Buckets
var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultPipelineDurationBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	DefaultSizeBuckets             = []float64{100, 1000, 10000, 100000, 1000000, 10000000}
	DefaultDBDurationBuckets       = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewAppMetrics registers all metrics and returns AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPRequestSize = collector.RegisterHistogram("http_request_size_bytes", "HTTP request size", DefaultSizeBuckets, "method", "path")
	m.HTTPResponseSize = collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", DefaultSizeBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	// Extraction pipeline
	m.ExtractionRunsTotal = collector.RegisterCounter("extraction_runs_total", "Extraction runs", "mode", "status")
	m.ExtractionRunDuration = collector.RegisterHistogram("extraction_run_duration_seconds", "Extraction run duration", DefaultPipelineDurationBuckets, "mode")
	m.ChunksProcessedTotal = collector.RegisterCounter("extraction_chunks_total", "Chunks processed", "source")
	m.ChunkDuration = collector.RegisterHistogram("extraction_chunk_duration_seconds", "Per-chunk extraction duration", DefaultHTTPDurationBuckets, "source")
	m.FallbackChunksTotal = collector.RegisterCounter("extraction_fallback_chunks_total", "Chunks that fell back to pattern extraction", "reason")
	m.EntitiesExtractedTotal = collector.RegisterCounter("extraction_entities_total", "Entities extracted", "source")
	m.RelationsExtractedTotal = collector.RegisterCounter("extraction_relations_total", "Relations extracted", "source")
	m.DroppedEntitiesTotal = collector.RegisterCounter("extraction_dropped_entities_total", "Entities dropped at merge for invalid spans")

	// Annotation client
	m.AnnotationRequestsTotal = collector.RegisterCounter("annotation_requests_total", "Remote annotation requests", "outcome")
	m.AnnotationDuration = collector.RegisterHistogram("annotation_request_duration_seconds", "Remote annotation request duration", DefaultHTTPDurationBuckets, "outcome")

	// Ingestion
	m.DocumentIngestTotal = collector.RegisterCounter("document_ingest_total", "Documents ingested", "format", "status")
	m.DocumentIngestDuration = collector.RegisterHistogram("document_ingest_duration_seconds", "Document ingestion duration", DefaultHTTPDurationBuckets, "format")

	// Graph
	m.GraphNodesTotal = collector.RegisterGauge("graph_nodes_total", "Graph nodes total", "label")
	m.GraphEdgesTotal = collector.RegisterGauge("graph_edges_total", "Graph edges total", "edge_type")
	m.GraphExportDuration = collector.RegisterHistogram("graph_export_duration_seconds", "Graph export duration", DefaultPipelineDurationBuckets, "operation")
	m.GraphQueryDuration = collector.RegisterHistogram("graph_query_duration_seconds", "Graph query duration", DefaultDBDurationBuckets, "query_type")

	// Search
	m.SearchIndexDuration = collector.RegisterHistogram("search_index_duration_seconds", "Search index write duration", DefaultDBDurationBuckets, "index")
	m.SearchQueryDuration = collector.RegisterHistogram("search_query_duration_seconds", "Search query duration", DefaultDBDurationBuckets, "index")

	// Infrastructure
	m.DBConnectionPoolSize = collector.RegisterGauge("db_pool_size", "Database connection pool size", "db")
	m.DBConnectionPoolActive = collector.RegisterGauge("db_pool_active", "Database active connections", "db")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.MessageQueueDepth = collector.RegisterGauge("mq_depth", "Message queue depth", "topic")
	m.MessageProcessDuration = collector.RegisterHistogram("mq_process_duration_seconds", "Message processing duration", DefaultPipelineDurationBuckets, "topic", "result")
	m.JobRetriesTotal = collector.RegisterCounter("job_retries_total", "Extraction job retries", "topic", "reason")
	m.DeadLetterTotal = collector.RegisterCounter("dead_letter_total", "Messages routed to the dead-letter topic", "topic")

	// System Health
	m.ServiceUptime = collector.RegisterGauge("service_uptime_seconds", "Service uptime", "service")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type", "severity")

	return m
}

// RegisterAppMetrics is an alias for NewAppMetrics.
func RegisterAppMetrics(collector MetricsCollector) *AppMetrics {
	return NewAppMetrics(collector)
}

// Helpers

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration, reqSize, respSize int64) {
	status := fmt.Sprintf("%d", statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	metrics.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

func RecordExtractionRun(metrics *AppMetrics, mode string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	metrics.ExtractionRunsTotal.WithLabelValues(mode, status).Inc()
	metrics.ExtractionRunDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func RecordChunkProcessed(metrics *AppMetrics, source string, fallback bool, duration time.Duration) {
	metrics.ChunksProcessedTotal.WithLabelValues(source).Inc()
	metrics.ChunkDuration.WithLabelValues(source).Observe(duration.Seconds())
	if fallback {
		metrics.FallbackChunksTotal.WithLabelValues("remote_failure").Inc()
	}
}

func RecordAnnotationCall(metrics *AppMetrics, outcome string, duration time.Duration) {
	metrics.AnnotationRequestsTotal.WithLabelValues(outcome).Inc()
	metrics.AnnotationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordDocumentIngest(metrics *AppMetrics, format string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	metrics.DocumentIngestTotal.WithLabelValues(format, status).Inc()
	metrics.DocumentIngestDuration.WithLabelValues(format).Observe(duration.Seconds())
}

func RecordDBQuery(metrics *AppMetrics, db, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(db, "query_error", "error").Inc()
	}
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordJobProcessed(metrics *AppMetrics, topic, result string, duration time.Duration) {
	metrics.MessageProcessDuration.WithLabelValues(topic, result).Observe(duration.Seconds())
}

func RecordError(metrics *AppMetrics, component, errorType, severity string) {
	metrics.ErrorsTotal.WithLabelValues(component, errorType, severity).Inc()
}

// GRPCMetrics instruments the operations gRPC endpoint.
type GRPCMetrics struct {
	RequestsTotal   CounterVec
	RequestDuration HistogramVec
}

// NewGRPCMetrics registers the gRPC metrics on the collector.
func NewGRPCMetrics(collector MetricsCollector) *GRPCMetrics {
	return &GRPCMetrics{
		RequestsTotal:   collector.RegisterCounter("grpc_requests_total", "Total gRPC requests", "service", "method", "code", "kind"),
		RequestDuration: collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration", DefaultHTTPDurationBuckets, "service", "method", "kind"),
	}
}

// RecordUnaryRequest records one finished unary call.
func (m *GRPCMetrics) RecordUnaryRequest(service, method, code string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, code, "unary").Inc()
	m.RequestDuration.WithLabelValues(service, method, "unary").Observe(duration.Seconds())
}

// RecordStreamRequest records one finished streaming call.
func (m *GRPCMetrics) RecordStreamRequest(service, method, code string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, code, "stream").Inc()
	m.RequestDuration.WithLabelValues(service, method, "stream").Observe(duration.Seconds())
}
