package common

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// ExtractionMetrics defines the unified metrics collection API for the
// extraction layer. Every stage (annotation client, pattern extractor,
// pipeline) records its operational telemetry through this interface so the
// underlying implementation (Prometheus, in-memory, noop) can be swapped
// without touching extraction code.
type ExtractionMetrics interface {
	// RecordChunkExtraction records the processing of a single chunk.
	RecordChunkExtraction(ctx context.Context, params *ChunkMetricParams)

	// RecordAnnotationRequest records one call to the remote annotation service.
	RecordAnnotationRequest(ctx context.Context, params *AnnotationMetricParams)

	// RecordCacheAccess records an annotation-cache hit or miss.
	RecordCacheAccess(ctx context.Context, hit bool, scope string)

	// RecordPipelineRun records a completed (or failed) extraction run.
	RecordPipelineRun(ctx context.Context, params *RunMetricParams)

	// GetAnnotationLatencyHistogram returns the annotation latency histogram
	// for SLO monitoring.
	GetAnnotationLatencyHistogram() LatencyHistogram

	// GetCurrentStats returns a point-in-time statistics snapshot.
	GetCurrentStats() *ExtractionStats
}

// LatencyHistogram provides percentile-based latency observation.
type LatencyHistogram interface {
	// Observe records a latency sample in milliseconds.
	Observe(durationMs float64)

	// Percentile returns the value at the given percentile (0–100).
	Percentile(p float64) float64

	// Count returns the total number of observed samples.
	Count() int64

	// Sum returns the sum of all observed values.
	Sum() float64
}

// Annotation request outcomes as recorded by RecordAnnotationRequest.
const (
	AnnotationOutcomeOK          = "ok"
	AnnotationOutcomeUnavailable = "unavailable"
	AnnotationOutcomeMalformed   = "malformed"
	AnnotationOutcomeTimeout     = "timeout"
)

// ---------------------------------------------------------------------------
// Parameter structs
// ---------------------------------------------------------------------------

// ChunkMetricParams carries the data for a single chunk extraction event.
type ChunkMetricParams struct {
	Source        Source  `json:"source"`
	DurationMs    float64 `json:"duration_ms"`
	Success       bool    `json:"success"`
	Fallback      bool    `json:"fallback"`
	EntityCount   int     `json:"entity_count"`
	RelationCount int     `json:"relation_count"`
}

// AnnotationMetricParams carries the data for one remote annotation call.
type AnnotationMetricParams struct {
	Outcome    string  `json:"outcome"`
	DurationMs float64 `json:"duration_ms"`
}

// RunMetricParams carries the data for a whole pipeline run.
type RunMetricParams struct {
	Mode           string  `json:"mode"`
	TotalChunks    int     `json:"total_chunks"`
	FallbackChunks int     `json:"fallback_chunks"`
	EntityCount    int     `json:"entity_count"`
	RelationCount  int     `json:"relation_count"`
	DurationMs     float64 `json:"duration_ms"`
	Success        bool    `json:"success"`
}

// ExtractionStats is a point-in-time snapshot of extraction-layer metrics.
type ExtractionStats struct {
	TotalRuns              int64   `json:"total_runs"`
	TotalChunks            int64   `json:"total_chunks"`
	FallbackChunks         int64   `json:"fallback_chunks"`
	TotalEntities          int64   `json:"total_entities"`
	TotalRelations         int64   `json:"total_relations"`
	AnnotationFailures     int64   `json:"annotation_failures"`
	AvgAnnotationLatencyMs float64 `json:"avg_annotation_latency_ms"`
	P50LatencyMs           float64 `json:"p50_latency_ms"`
	P95LatencyMs           float64 `json:"p95_latency_ms"`
	P99LatencyMs           float64 `json:"p99_latency_ms"`
	CacheHitRate           float64 `json:"cache_hit_rate"`
}

// ---------------------------------------------------------------------------
// Prometheus implementation
// ---------------------------------------------------------------------------

const metricsPrefix = "legisgraph_extraction_"

var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000}

type prometheusExtractionMetrics struct {
	chunkDuration      *prometheus.HistogramVec
	chunksTotal        *prometheus.CounterVec
	annotationDuration *prometheus.HistogramVec
	annotationsTotal   *prometheus.CounterVec
	cacheAccessTotal   *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	runsTotal          *prometheus.CounterVec
	runItemsTotal      *prometheus.CounterVec
	fallbackTotal      *prometheus.CounterVec

	// in-memory tracking for GetCurrentStats / GetAnnotationLatencyHistogram
	latencyHist *latencyHistogram
	totalRuns   atomic.Int64
	totalChunks atomic.Int64
	fallbacks   atomic.Int64
	entities    atomic.Int64
	relations   atomic.Int64
	annFailures atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// NewPrometheusExtractionMetrics creates a Prometheus-backed metrics
// collector and registers all metrics with the supplied Registerer.
func NewPrometheusExtractionMetrics(registerer prometheus.Registerer) (*prometheusExtractionMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &prometheusExtractionMetrics{
		latencyHist: newLatencyHistogram(),
	}

	m.chunkDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "chunk_duration_milliseconds",
		Help:    "Histogram of per-chunk extraction latency in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"source"})

	m.chunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "chunks_total",
		Help: "Total number of chunks processed.",
	}, []string{"source", "status"})

	m.annotationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "annotation_request_duration_milliseconds",
		Help:    "Histogram of remote annotation call latency in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"outcome"})

	m.annotationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "annotation_requests_total",
		Help: "Total number of remote annotation calls.",
	}, []string{"outcome"})

	m.cacheAccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "cache_access_total",
		Help: "Total number of annotation cache accesses.",
	}, []string{"scope", "result"})

	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "run_duration_milliseconds",
		Help:    "Histogram of whole-run extraction latency in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"mode"})

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "runs_total",
		Help: "Total number of extraction runs.",
	}, []string{"mode", "status"})

	m.runItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "run_items_total",
		Help: "Total number of items produced by extraction runs.",
	}, []string{"kind"})

	m.fallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "fallback_chunks_total",
		Help: "Total number of chunks that fell back to pattern extraction.",
	}, []string{"mode"})

	collectors := []prometheus.Collector{
		m.chunkDuration,
		m.chunksTotal,
		m.annotationDuration,
		m.annotationsTotal,
		m.cacheAccessTotal,
		m.runDuration,
		m.runsTotal,
		m.runItemsTotal,
		m.fallbackTotal,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *prometheusExtractionMetrics) RecordChunkExtraction(_ context.Context, p *ChunkMetricParams) {
	if p == nil {
		return
	}
	status := "success"
	if !p.Success {
		status = "failure"
	}

	m.chunkDuration.WithLabelValues(string(p.Source)).Observe(p.DurationMs)
	m.chunksTotal.WithLabelValues(string(p.Source), status).Inc()

	m.totalChunks.Add(1)
	if p.Fallback {
		m.fallbacks.Add(1)
	}
}

func (m *prometheusExtractionMetrics) RecordAnnotationRequest(_ context.Context, p *AnnotationMetricParams) {
	if p == nil {
		return
	}
	m.annotationDuration.WithLabelValues(p.Outcome).Observe(p.DurationMs)
	m.annotationsTotal.WithLabelValues(p.Outcome).Inc()

	m.latencyHist.Observe(p.DurationMs)
	if p.Outcome != AnnotationOutcomeOK {
		m.annFailures.Add(1)
	}
}

func (m *prometheusExtractionMetrics) RecordCacheAccess(_ context.Context, hit bool, scope string) {
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
	m.cacheAccessTotal.WithLabelValues(scope, result).Inc()
}

func (m *prometheusExtractionMetrics) RecordPipelineRun(_ context.Context, p *RunMetricParams) {
	if p == nil {
		return
	}
	status := "success"
	if !p.Success {
		status = "failure"
	}

	m.runDuration.WithLabelValues(p.Mode).Observe(p.DurationMs)
	m.runsTotal.WithLabelValues(p.Mode, status).Inc()
	m.runItemsTotal.WithLabelValues("entity").Add(float64(p.EntityCount))
	m.runItemsTotal.WithLabelValues("relation").Add(float64(p.RelationCount))
	m.fallbackTotal.WithLabelValues(p.Mode).Add(float64(p.FallbackChunks))

	m.totalRuns.Add(1)
	m.entities.Add(int64(p.EntityCount))
	m.relations.Add(int64(p.RelationCount))
}

func (m *prometheusExtractionMetrics) GetAnnotationLatencyHistogram() LatencyHistogram {
	return m.latencyHist
}

func (m *prometheusExtractionMetrics) GetCurrentStats() *ExtractionStats {
	count := m.latencyHist.Count()
	var avgLatency float64
	if count > 0 {
		avgLatency = m.latencyHist.Sum() / float64(count)
	}

	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	return &ExtractionStats{
		TotalRuns:              m.totalRuns.Load(),
		TotalChunks:            m.totalChunks.Load(),
		FallbackChunks:         m.fallbacks.Load(),
		TotalEntities:          m.entities.Load(),
		TotalRelations:         m.relations.Load(),
		AnnotationFailures:     m.annFailures.Load(),
		AvgAnnotationLatencyMs: avgLatency,
		P50LatencyMs:           m.latencyHist.Percentile(50),
		P95LatencyMs:           m.latencyHist.Percentile(95),
		P99LatencyMs:           m.latencyHist.Percentile(99),
		CacheHitRate:           hitRate,
	}
}

// ---------------------------------------------------------------------------
// Noop implementation
// ---------------------------------------------------------------------------

type noopExtractionMetrics struct{}

// NewNoopExtractionMetrics returns a no-op metrics implementation.
func NewNoopExtractionMetrics() *noopExtractionMetrics {
	return &noopExtractionMetrics{}
}

func (n *noopExtractionMetrics) RecordChunkExtraction(context.Context, *ChunkMetricParams)        {}
func (n *noopExtractionMetrics) RecordAnnotationRequest(context.Context, *AnnotationMetricParams) {}
func (n *noopExtractionMetrics) RecordCacheAccess(context.Context, bool, string)                  {}
func (n *noopExtractionMetrics) RecordPipelineRun(context.Context, *RunMetricParams)              {}

func (n *noopExtractionMetrics) GetAnnotationLatencyHistogram() LatencyHistogram {
	return newLatencyHistogram()
}

func (n *noopExtractionMetrics) GetCurrentStats() *ExtractionStats {
	return &ExtractionStats{}
}

// ---------------------------------------------------------------------------
// In-memory implementation (for testing)
// ---------------------------------------------------------------------------

type inMemoryExtractionMetrics struct {
	mu sync.Mutex

	chunks      []*ChunkMetricParams
	annotations []*AnnotationMetricParams
	runs        []*RunMetricParams
	cacheHits   int64
	cacheMisses int64
	latencyHist *latencyHistogram
}

// NewInMemoryExtractionMetrics returns an in-memory metrics implementation
// suitable for unit tests.
func NewInMemoryExtractionMetrics() *inMemoryExtractionMetrics {
	return &inMemoryExtractionMetrics{
		latencyHist: newLatencyHistogram(),
	}
}

func (m *inMemoryExtractionMetrics) RecordChunkExtraction(_ context.Context, p *ChunkMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.chunks = append(m.chunks, &cp)
}

func (m *inMemoryExtractionMetrics) RecordAnnotationRequest(_ context.Context, p *AnnotationMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.annotations = append(m.annotations, &cp)
	m.latencyHist.observeUnlocked(p.DurationMs)
}

func (m *inMemoryExtractionMetrics) RecordCacheAccess(_ context.Context, hit bool, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *inMemoryExtractionMetrics) RecordPipelineRun(_ context.Context, p *RunMetricParams) {
	if p == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.runs = append(m.runs, &cp)
}

func (m *inMemoryExtractionMetrics) GetAnnotationLatencyHistogram() LatencyHistogram {
	return m.latencyHist
}

func (m *inMemoryExtractionMetrics) GetCurrentStats() *ExtractionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fallbacks, entities, relations, annFailures int64
	for _, c := range m.chunks {
		if c.Fallback {
			fallbacks++
		}
	}
	for _, r := range m.runs {
		entities += int64(r.EntityCount)
		relations += int64(r.RelationCount)
	}
	for _, a := range m.annotations {
		if a.Outcome != AnnotationOutcomeOK {
			annFailures++
		}
	}

	count := m.latencyHist.Count()
	var avgLatency float64
	if count > 0 {
		avgLatency = m.latencyHist.Sum() / float64(count)
	}

	hits := m.cacheHits
	misses := m.cacheMisses
	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	return &ExtractionStats{
		TotalRuns:              int64(len(m.runs)),
		TotalChunks:            int64(len(m.chunks)),
		FallbackChunks:         fallbacks,
		TotalEntities:          entities,
		TotalRelations:         relations,
		AnnotationFailures:     annFailures,
		AvgAnnotationLatencyMs: avgLatency,
		P50LatencyMs:           m.latencyHist.Percentile(50),
		P95LatencyMs:           m.latencyHist.Percentile(95),
		P99LatencyMs:           m.latencyHist.Percentile(99),
		CacheHitRate:           hitRate,
	}
}

// GetRecordedChunks returns a copy of all recorded chunk params.
func (m *inMemoryExtractionMetrics) GetRecordedChunks() []*ChunkMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ChunkMetricParams, len(m.chunks))
	for i, p := range m.chunks {
		cp := *p
		out[i] = &cp
	}
	return out
}

// GetRecordedAnnotations returns a copy of all recorded annotation params.
func (m *inMemoryExtractionMetrics) GetRecordedAnnotations() []*AnnotationMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AnnotationMetricParams, len(m.annotations))
	for i, p := range m.annotations {
		cp := *p
		out[i] = &cp
	}
	return out
}

// GetRecordedRuns returns a copy of all recorded run params.
func (m *inMemoryExtractionMetrics) GetRecordedRuns() []*RunMetricParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*RunMetricParams, len(m.runs))
	for i, p := range m.runs {
		cp := *p
		out[i] = &cp
	}
	return out
}

// GetCacheHits returns the number of cache hits recorded.
func (m *inMemoryExtractionMetrics) GetCacheHits() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheHits
}

// GetCacheMisses returns the number of cache misses recorded.
func (m *inMemoryExtractionMetrics) GetCacheMisses() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheMisses
}

// ---------------------------------------------------------------------------
// In-memory latency histogram
// ---------------------------------------------------------------------------

type latencyHistogram struct {
	mu      sync.RWMutex
	samples []float64
	sum     float64
	sorted  bool
}

func newLatencyHistogram() *latencyHistogram {
	return &latencyHistogram{
		samples: make([]float64, 0, 1024),
	}
}

func (h *latencyHistogram) Observe(durationMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observeUnlocked(durationMs)
}

// observeUnlocked is called when the caller already holds the lock (e.g.
// inMemoryExtractionMetrics which locks at a higher level).
func (h *latencyHistogram) observeUnlocked(durationMs float64) {
	h.samples = append(h.samples, durationMs)
	h.sum += durationMs
	h.sorted = false
}

// Percentile returns the value at percentile p (0–100) using linear
// interpolation between the two nearest ranks.
func (h *latencyHistogram) Percentile(p float64) float64 {
	h.mu.RLock()
	n := len(h.samples)
	if n == 0 {
		h.mu.RUnlock()
		return 0
	}

	// We need a sorted copy. If not sorted yet, upgrade to write lock.
	if !h.sorted {
		h.mu.RUnlock()
		h.mu.Lock()
		if !h.sorted {
			sort.Float64s(h.samples)
			h.sorted = true
		}
		h.mu.Unlock()
		h.mu.RLock()
	}

	defer h.mu.RUnlock()

	if p <= 0 {
		return h.samples[0]
	}
	if p >= 100 {
		return h.samples[n-1]
	}

	// Use the "C = 1" variant of the percentile formula (Excel PERCENTILE.INC).
	rank := (p / 100) * float64(n-1)
	lower := int(math.Floor(rank))
	upper := lower + 1
	if upper >= n {
		return h.samples[n-1]
	}
	frac := rank - float64(lower)
	return h.samples[lower] + frac*(h.samples[upper]-h.samples[lower])
}

func (h *latencyHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return int64(len(h.samples))
}

func (h *latencyHistogram) Sum() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sum
}

// compile-time interface checks
var (
	_ ExtractionMetrics = (*prometheusExtractionMetrics)(nil)
	_ ExtractionMetrics = (*noopExtractionMetrics)(nil)
	_ ExtractionMetrics = (*inMemoryExtractionMetrics)(nil)
	_ LatencyHistogram  = (*latencyHistogram)(nil)
)
