// Package pipeline orchestrates a full extraction run: chunk the document,
// annotate or pattern-extract each chunk, fold chunk-local results back
// into document coordinates, then canonicalize and deduplicate. Chunks may
// be processed in parallel but results are always recombined in chunk
// order, so a run is deterministic for a fixed catalog in pattern-only
// mode.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/LegisGraph/internal/intelligence/annotate"
	"github.com/turtacn/LegisGraph/internal/intelligence/canonical"
	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/internal/intelligence/merge"
	"github.com/turtacn/LegisGraph/internal/intelligence/patterns"
	"github.com/turtacn/LegisGraph/internal/intelligence/textproc"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

// ---------------------------------------------------------------------------
// Modes
// ---------------------------------------------------------------------------

// Mode selects how chunks are extracted.
type Mode string

const (
	// ModeRemoteFirst annotates each chunk remotely and falls back to the
	// pattern catalog for chunks the remote service cannot serve.
	ModeRemoteFirst Mode = "remote_first"
	// ModePatternOnly runs the pattern catalog only and never contacts the
	// remote service.
	ModePatternOnly Mode = "pattern_only"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeRemoteFirst || m == ModePatternOnly
}

// ParseMode maps a configuration or CLI string onto a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errors.Newf(errors.ErrCodeInvalidMode, "unknown extraction mode %q", s)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config controls one pipeline instance.
type Config struct {
	Mode Mode `json:"mode" yaml:"mode"`
	// Parallelism bounds concurrent chunk processing. 1 means sequential.
	Parallelism int `json:"parallelism" yaml:"parallelism"`
	// ChunkTimeout covers one chunk end to end, one annotation attempt
	// plus the pattern fallback included.
	ChunkTimeout time.Duration `json:"chunk_timeout" yaml:"chunk_timeout"`
	// RunTimeout bounds the whole run.
	RunTimeout time.Duration `json:"run_timeout" yaml:"run_timeout"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:         ModeRemoteFirst,
		Parallelism:  1,
		ChunkTimeout: 60 * time.Second,
		RunTimeout:   5 * time.Minute,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return errors.Newf(errors.ErrCodeInvalidMode, "unknown extraction mode %q", c.Mode)
	}
	if c.Parallelism < 1 {
		return errors.Validation("parallelism must be at least 1")
	}
	if c.ChunkTimeout <= 0 {
		return errors.Validation("chunk_timeout must be positive")
	}
	if c.RunTimeout <= 0 {
		return errors.Validation("run_timeout must be positive")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Result
// ---------------------------------------------------------------------------

// Result is the outcome of one extraction run. Entities and relations are
// canonical and deduplicated; every item carries its extraction source.
type Result struct {
	Entities  []common.Entity   `json:"entities"`
	Relations []common.Relation `json:"relations"`

	Mode            Mode    `json:"mode"`
	TotalChunks     int     `json:"total_chunks"`
	FallbackChunks  int     `json:"fallback_chunks"`
	DroppedEntities int     `json:"dropped_entities"`
	DurationMs      float64 `json:"duration_ms"`
	Summary         string  `json:"summary"`
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Pipeline runs the extraction flow over whole documents.
type Pipeline interface {
	Run(ctx context.Context, document string) (*Result, error)
}

// Dependencies carries the pipeline's collaborators. Chunker, Extractor,
// Merger, and Canonicalizer fall back to their package defaults when nil;
// Annotator is required in remote-first mode.
type Dependencies struct {
	Chunker       textproc.Chunker
	Annotator     annotate.Annotator
	Extractor     patterns.Extractor
	Merger        merge.Merger
	Canonicalizer canonical.Canonicalizer
	Logger        common.Logger
	Metrics       common.ExtractionMetrics
}

type chunkOutcome struct {
	result   merge.ChunkResult
	fallback bool
}

type pipelineImpl struct {
	cfg           *Config
	chunker       textproc.Chunker
	annotator     annotate.Annotator
	extractor     patterns.Extractor
	merger        merge.Merger
	canonicalizer canonical.Canonicalizer
	batch         common.BatchProcessor[textproc.Chunk, chunkOutcome]
	logger        common.Logger
	metrics       common.ExtractionMetrics
}

var _ Pipeline = (*pipelineImpl)(nil)

// New builds a pipeline for the given configuration.
func New(cfg *Config, deps Dependencies) (Pipeline, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = common.NewNoopExtractionMetrics()
	}

	chunker := deps.Chunker
	if chunker == nil {
		var err error
		chunker, err = textproc.NewChunker(nil, logger)
		if err != nil {
			return nil, err
		}
	}
	extractor := deps.Extractor
	if extractor == nil {
		var err error
		extractor, err = patterns.NewExtractor(nil, logger)
		if err != nil {
			return nil, err
		}
	}
	merger := deps.Merger
	if merger == nil {
		merger = merge.NewMerger(logger)
	}
	canonicalizer := deps.Canonicalizer
	if canonicalizer == nil {
		canonicalizer = canonical.NewCanonicalizer(nil, logger)
	}
	if cfg.Mode == ModeRemoteFirst && deps.Annotator == nil {
		return nil, errors.InvalidParam("remote_first mode requires an annotator")
	}

	return &pipelineImpl{
		cfg:           cfg,
		chunker:       chunker,
		annotator:     deps.Annotator,
		extractor:     extractor,
		merger:        merger,
		canonicalizer: canonicalizer,
		batch: common.NewBatchProcessor[textproc.Chunk, chunkOutcome](
			common.WithMaxConcurrency(cfg.Parallelism),
			common.WithItemTimeout(cfg.ChunkTimeout),
			common.WithBatchTimeout(cfg.RunTimeout),
			common.WithBatchLogger(logger),
		),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Run executes one extraction over the document. An empty or
// whitespace-only document fails before chunking; a run where any chunk
// fails outright returns an error rather than presenting partial output as
// complete.
func (p *pipelineImpl) Run(ctx context.Context, document string) (res *Result, err error) {
	start := time.Now()
	defer func() {
		params := &common.RunMetricParams{
			Mode:       string(p.cfg.Mode),
			DurationMs: durationMs(start),
			Success:    err == nil,
		}
		if res != nil {
			params.TotalChunks = res.TotalChunks
			params.FallbackChunks = res.FallbackChunks
			params.EntityCount = len(res.Entities)
			params.RelationCount = len(res.Relations)
		}
		p.metrics.RecordPipelineRun(ctx, params)
	}()

	if strings.TrimSpace(document) == "" {
		return nil, errors.New(errors.ErrCodeEmptyDocument, "document is empty")
	}

	chunks := p.chunker.Split(document)
	batch, err := p.batch.Process(ctx, chunks, p.processChunk)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNoChunksProcessed, "chunk processing did not start")
	}

	chunkResults := make([]merge.ChunkResult, 0, len(chunks))
	fallback, failed := 0, 0
	var firstErr error
	for _, item := range batch.Results {
		if item.Status != common.ItemStatusSuccess {
			failed++
			if firstErr == nil {
				firstErr = item.Error
			}
			continue
		}
		if item.Result.fallback {
			fallback++
		}
		chunkResults = append(chunkResults, item.Result.result)
	}

	if len(chunkResults) == 0 {
		msg := "no chunks could be processed"
		if firstErr != nil {
			return nil, errors.Wrap(firstErr, errors.ErrCodeNoChunksProcessed, msg)
		}
		return nil, errors.New(errors.ErrCodeNoChunksProcessed, msg)
	}
	if failed > 0 {
		return nil, errors.Wrapf(firstErr, errors.ErrCodeNoChunksProcessed,
			"extraction incomplete, %d of %d chunks failed", failed, len(chunks))
	}

	merged, err := p.merger.Merge(document, chunkResults)
	if err != nil {
		return nil, err
	}

	entities := p.canonicalizer.MergeEntities(merged.Entities)
	relations := p.canonicalizer.DedupRelations(merged.Relations)

	res = &Result{
		Entities:        entities,
		Relations:       relations,
		Mode:            p.cfg.Mode,
		TotalChunks:     len(chunks),
		FallbackChunks:  fallback,
		DroppedEntities: merged.DroppedEntities,
		DurationMs:      durationMs(start),
		Summary:         fmt.Sprintf("%d of %d chunks used fallback", fallback, len(chunks)),
	}
	p.logger.Info("extraction run complete",
		"mode", string(p.cfg.Mode),
		"total_chunks", res.TotalChunks,
		"fallback_chunks", res.FallbackChunks,
		"entities", len(res.Entities),
		"relations", len(res.Relations),
		"dropped_entities", res.DroppedEntities,
		"duration_ms", res.DurationMs)
	return res, nil
}

// processChunk extracts one chunk. In remote-first mode a failed annotation
// falls back to the pattern catalog unless the context is already dead, in
// which case the chunk fails and the run aborts. Remote output and fallback
// output are never mixed for the same chunk.
func (p *pipelineImpl) processChunk(ctx context.Context, chunk textproc.Chunk) (chunkOutcome, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return chunkOutcome{}, err
	}

	if p.cfg.Mode == ModeRemoteFirst {
		annotation, err := p.annotator.Annotate(ctx, chunk.Text)
		if err == nil {
			out := chunkOutcome{result: merge.ChunkResult{
				Start:     chunk.Start,
				Text:      chunk.Text,
				Entities:  annotation.Entities,
				Relations: annotation.Relations,
			}}
			p.recordChunk(ctx, common.SourceAnnotation, false, &out.result, start)
			return out, nil
		}
		if ctx.Err() != nil {
			return chunkOutcome{}, err
		}
		p.logger.Warn("remote annotation failed, using pattern fallback",
			"chunk_start", chunk.Start,
			"error", err.Error())
	}

	ext := p.extractor.Extract(chunk.Text)
	out := chunkOutcome{
		result: merge.ChunkResult{
			Start:     chunk.Start,
			Text:      chunk.Text,
			Entities:  ext.Entities,
			Relations: ext.Relations,
		},
		fallback: p.cfg.Mode == ModeRemoteFirst,
	}
	p.recordChunk(ctx, common.SourcePattern, out.fallback, &out.result, start)
	return out, nil
}

func (p *pipelineImpl) recordChunk(ctx context.Context, source common.Source, fallback bool, r *merge.ChunkResult, start time.Time) {
	p.metrics.RecordChunkExtraction(ctx, &common.ChunkMetricParams{
		Source:        source,
		DurationMs:    durationMs(start),
		Success:       true,
		Fallback:      fallback,
		EntityCount:   len(r.Entities),
		RelationCount: len(r.Relations),
	})
}

func durationMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
