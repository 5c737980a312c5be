package extraction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/turtacn/LegisGraph/internal/domain/bill"
	"github.com/turtacn/LegisGraph/internal/infrastructure/database/redis"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/prometheus"
	storage "github.com/turtacn/LegisGraph/internal/infrastructure/storage/minio"
	"github.com/turtacn/LegisGraph/internal/intelligence/annotate"
	"github.com/turtacn/LegisGraph/internal/intelligence/canonical"
	icommon "github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/internal/intelligence/merge"
	"github.com/turtacn/LegisGraph/internal/intelligence/patterns"
	"github.com/turtacn/LegisGraph/internal/intelligence/pipeline"
	"github.com/turtacn/LegisGraph/internal/intelligence/textproc"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// ArtifactStore persists run exports and shareable result bundles.
// minio.ObjectStore satisfies it.
type ArtifactStore interface {
	PutExport(ctx context.Context, runID common.ID, name string, data []byte) (*storage.StoredObject, error)
	PresignExport(ctx context.Context, runID common.ID, name string, expiry time.Duration) (string, error)
	PutTemp(ctx context.Context, key string, data []byte, contentType string) (*storage.StoredObject, error)
	PresignTemp(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// EventProducer publishes extraction lifecycle messages. kafka.Producer
// satisfies it.
type EventProducer interface {
	PublishExtractionJob(ctx context.Context, job btypes.ExtractionJobMessage) error
	PublishExtractionCompleted(ctx context.Context, msg btypes.ExtractionCompletedMessage) error
}

// ---------------------------------------------------------------------------
// Request / Response DTOs
// ---------------------------------------------------------------------------

// ListRunsRequest narrows and pages an extraction run listing.
type ListRunsRequest struct {
	DocumentID common.ID         `json:"document_id,omitempty"`
	Status     btypes.RunStatus  `json:"status,omitempty"`
	Pagination common.Pagination `json:"pagination"`
}

// RunList is one page of extraction runs, newest first.
type RunList struct {
	Runs       []btypes.ExtractionRunDTO `json:"runs"`
	Pagination common.Pagination         `json:"pagination"`
}

// ExportResult reports what a graph export produced.
type ExportResult struct {
	RunID         common.ID             `json:"run_id"`
	DocumentID    common.ID             `json:"document_id"`
	EntityCount   int                   `json:"entity_count"`
	RelationCount int                   `json:"relation_count"`
	GraphStats    *btypes.GraphStatsDTO `json:"graph_stats,omitempty"`
	Artifacts     []string              `json:"artifacts,omitempty"`
}

// ---------------------------------------------------------------------------
// Service Interface
// ---------------------------------------------------------------------------

// RunService manages extraction runs: creating them, executing the pipeline,
// reading back results, and exporting them to the knowledge graph.
type RunService interface {
	// StartExtraction creates a run for a document. Synchronous requests
	// execute the pipeline before returning; asynchronous ones enqueue a
	// job and return the pending run.
	StartExtraction(ctx context.Context, req *btypes.ExtractRequest) (*btypes.ExtractionRunDTO, error)

	// ExecuteRun runs the pipeline for a previously created run. Terminal
	// runs are returned as-is so redelivered jobs stay idempotent; a run
	// already executing elsewhere is reported as a conflict.
	ExecuteRun(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error)

	// GetRun returns one run.
	GetRun(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error)

	// ListRuns returns a page of runs, newest first.
	ListRuns(ctx context.Context, req *ListRunsRequest) (*RunList, error)

	// GetRunResults returns the run together with its stored entities and
	// relations.
	GetRunResults(ctx context.Context, runID common.ID) (*btypes.ExtractionResultDTO, error)

	// ExportRun writes the results of a succeeded run into the knowledge
	// graph and drops JSON artifacts into object storage.
	ExportRun(ctx context.Context, runID common.ID) (*ExportResult, error)

	// PresignArtifact returns a time-limited download link for one export
	// artifact of a run.
	PresignArtifact(ctx context.Context, runID common.ID, name string, expiry time.Duration) (string, error)

	// ShareResults bundles the run results into a temporary object and
	// returns a presigned link to it.
	ShareResults(ctx context.Context, runID common.ID, expiry time.Duration) (string, error)

	// RunStatusCounts reports how many runs sit in each status.
	RunStatusCounts(ctx context.Context) (map[btypes.RunStatus]int64, error)
}

// RunServiceDeps carries the collaborators of the run service. Documents,
// Runs, and Logger are required. Annotator is only needed when remote-first
// runs are executed; Graph, Index, Store, Events, and Locks degrade the
// matching operations when nil. Catalog and Aliases default to the built-in
// pattern catalog and alias table.
type RunServiceDeps struct {
	Documents bill.DocumentRepository
	Runs      bill.ExtractionRunRepository
	Graph     bill.KnowledgeGraphRepository
	Index     SearchIndex
	Store     ArtifactStore
	Events    EventProducer
	Locks     redis.LockFactory
	Annotator annotate.Annotator
	Catalog   *patterns.Catalog
	Aliases   *canonical.AliasTable
	Logger    logging.Logger
	Metrics   *prometheus.AppMetrics

	// PipelineMetrics feeds the pipeline-internal instrumentation; nil
	// means no-op.
	PipelineMetrics icommon.ExtractionMetrics

	// DefaultMode applies when an extract request leaves the mode empty.
	// Zero value means remote-first.
	DefaultMode btypes.ExtractionMode

	// MaxChunkChars and Parallelism override the pipeline defaults when
	// positive.
	MaxChunkChars int
	Parallelism   int
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type runServiceImpl struct {
	documents bill.DocumentRepository
	runs      bill.ExtractionRunRepository
	graph     bill.KnowledgeGraphRepository
	index     SearchIndex
	store     ArtifactStore
	events    EventProducer
	locks     redis.LockFactory
	logger    logging.Logger
	metrics   *prometheus.AppMetrics

	chunker       textproc.Chunker
	annotator     annotate.Annotator
	extractor     patterns.Extractor
	merger        merge.Merger
	canonicalizer canonical.Canonicalizer
	kv            icommon.Logger
	pipeMetrics   icommon.ExtractionMetrics

	defaultMode btypes.ExtractionMode
	parallelism int
}

// NewRunService builds the run service and the pipeline stages it executes.
// It fails when the pattern catalog or chunker configuration is unusable, so
// a bad catalog stops the process at startup instead of failing every run.
func NewRunService(deps RunServiceDeps) (RunService, error) {
	if deps.Documents == nil {
		return nil, appErrors.InvalidParam("document repository must not be nil")
	}
	if deps.Runs == nil {
		return nil, appErrors.InvalidParam("run repository must not be nil")
	}
	if deps.Logger == nil {
		return nil, appErrors.InvalidParam("logger must not be nil")
	}

	kv := newKVLogger(deps.Logger)

	chunkerCfg := textproc.DefaultChunkerConfig()
	if deps.MaxChunkChars > 0 {
		chunkerCfg.MaxChunkChars = deps.MaxChunkChars
	}
	chunker, err := textproc.NewChunker(chunkerCfg, kv)
	if err != nil {
		return nil, err
	}

	extractor, err := patterns.NewExtractor(deps.Catalog, kv)
	if err != nil {
		return nil, err
	}

	defaultMode := deps.DefaultMode
	if !defaultMode.IsValid() {
		defaultMode = btypes.ModeRemoteFirst
	}

	pipeMetrics := deps.PipelineMetrics
	if pipeMetrics == nil {
		pipeMetrics = icommon.NewNoopExtractionMetrics()
	}

	return &runServiceImpl{
		documents:     deps.Documents,
		runs:          deps.Runs,
		graph:         deps.Graph,
		index:         deps.Index,
		store:         deps.Store,
		events:        deps.Events,
		locks:         deps.Locks,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		chunker:       chunker,
		annotator:     deps.Annotator,
		extractor:     extractor,
		merger:        merge.NewMerger(kv),
		canonicalizer: canonical.NewCanonicalizer(deps.Aliases, kv),
		kv:            kv,
		pipeMetrics:   pipeMetrics,
		defaultMode:   defaultMode,
		parallelism:   deps.Parallelism,
	}, nil
}

func (s *runServiceImpl) StartExtraction(ctx context.Context, req *btypes.ExtractRequest) (*btypes.ExtractionRunDTO, error) {
	if req == nil {
		return nil, appErrors.InvalidParam("extract request must not be nil")
	}

	// 1. An empty mode falls back to the configured default before
	// validation, so callers may omit it.
	r := *req
	if r.Mode == "" {
		r.Mode = s.defaultMode
	}
	if err := r.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeValidation, "invalid extract request")
	}
	if r.Async && s.events == nil {
		return nil, appErrors.New(appErrors.ErrCodeServiceUnavailable,
			"asynchronous extraction requires a message producer")
	}

	// 2. The document must exist before a run is created for it.
	if _, err := s.documents.GetByID(ctx, r.DocumentID); err != nil {
		return nil, err
	}

	// 3. Create and persist the pending run.
	run, err := bill.NewExtractionRun(r.DocumentID, r.Mode)
	if err != nil {
		return nil, err
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("Extraction run created",
		logging.String("run_id", string(run.ID)),
		logging.String("document_id", string(run.DocumentID)),
		logging.String("mode", string(run.Mode)),
		logging.Bool("async", r.Async))

	// 4. Asynchronous requests hand the run to the worker via Kafka.
	if r.Async {
		job := btypes.ExtractionJobMessage{
			RunID:      run.ID,
			DocumentID: run.DocumentID,
			Mode:       run.Mode,
			EnqueuedAt: time.Now().UTC(),
		}
		if err := s.events.PublishExtractionJob(ctx, job); err != nil {
			// The run would wait forever without its job, so fail it
			// rather than leave it pending.
			s.failRun(ctx, run, "failed to enqueue extraction job: "+err.Error())
			return nil, appErrors.Wrap(err, appErrors.ErrCodePublish,
				"failed to enqueue extraction job")
		}
		dto := run.ToDTO()
		return &dto, nil
	}

	// 5. Synchronous requests execute in place.
	return s.ExecuteRun(ctx, run.ID)
}

func (s *runServiceImpl) ExecuteRun(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error) {
	if err := runID.Validate(); err != nil {
		return nil, appErrors.InvalidParam("invalid run id: " + err.Error())
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	// 1. Redelivered jobs for finished runs are acknowledged, not re-run.
	if run.Status.IsTerminal() {
		dto := run.ToDTO()
		return &dto, nil
	}
	if run.Status == btypes.RunRunning {
		return nil, appErrors.New(appErrors.ErrCodeConflict,
			"extraction run "+string(run.ID)+" is already executing")
	}

	// 2. One extraction per document at a time across all workers.
	release, err := s.acquireDocumentLock(ctx, run.DocumentID)
	if err != nil {
		return nil, err
	}
	defer release()

	// 3. A run whose document has been deleted can never succeed.
	doc, err := s.documents.GetByID(ctx, run.DocumentID)
	if err != nil {
		if appErrors.IsCode(err, appErrors.ErrCodeDocumentNotFound) {
			s.failRun(ctx, run, "document "+string(run.DocumentID)+" no longer exists")
			dto := run.ToDTO()
			return &dto, nil
		}
		return nil, err
	}

	// 4. Claim the run. Everything after this point either completes or
	// fails it; transient errors no longer bubble up as retryable, since
	// the claim would wedge redelivered jobs in conflict.
	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := s.runs.Update(ctx, run); err != nil {
		return nil, err
	}

	started := time.Now()
	pl, err := s.buildPipeline(run.Mode)
	if err != nil {
		s.observeRun(run.Mode, false, started)
		s.failRun(ctx, run, "pipeline construction failed: "+err.Error())
		dto := run.ToDTO()
		return &dto, nil
	}

	res, err := pl.Run(ctx, doc.RawText)
	if err != nil {
		s.observeRun(run.Mode, false, started)
		s.failRun(ctx, run, err.Error())
		dto := run.ToDTO()
		return &dto, nil
	}

	// 5. Results land in Postgres first; search indexing follows best
	// effort since Postgres is the source of truth.
	entities := domainEntities(res.Entities)
	relations := domainRelations(res.Relations)
	if err := s.runs.SaveResults(ctx, run.ID, entities, relations); err != nil {
		s.observeRun(run.Mode, false, started)
		s.failRun(ctx, run, "failed to persist results: "+err.Error())
		dto := run.ToDTO()
		return &dto, nil
	}

	if err := run.Complete(bill.CompletionStats{
		TotalChunks:     res.TotalChunks,
		FallbackChunks:  res.FallbackChunks,
		EntityCount:     len(entities),
		RelationCount:   len(relations),
		DroppedEntities: res.DroppedEntities,
		Summary:         res.Summary,
		DurationMs:      res.DurationMs,
	}); err != nil {
		return nil, err
	}
	if err := s.runs.Update(ctx, run); err != nil {
		// Results are stored but the run still reads as running; surface
		// the error so operators see the inconsistency.
		s.logger.Error("Failed to persist completed run",
			logging.String("run_id", string(run.ID)), logging.Err(err))
		recordError(s.metrics, "postgres", "run_update")
		return nil, err
	}

	s.indexResults(ctx, run, entities, relations)
	s.publishCompleted(ctx, run)
	s.observeRun(run.Mode, true, started)

	s.logger.Info("Extraction run completed",
		logging.String("run_id", string(run.ID)),
		logging.String("document_id", string(run.DocumentID)),
		logging.String("mode", string(run.Mode)),
		logging.Int("entities", run.EntityCount),
		logging.Int("relations", run.RelationCount),
		logging.Int("fallback_chunks", run.FallbackChunks),
		logging.Float64("duration_ms", run.DurationMs))

	dto := run.ToDTO()
	return &dto, nil
}

func (s *runServiceImpl) GetRun(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error) {
	if err := runID.Validate(); err != nil {
		return nil, appErrors.InvalidParam("invalid run id: " + err.Error())
	}
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	dto := run.ToDTO()
	return &dto, nil
}

func (s *runServiceImpl) ListRuns(ctx context.Context, req *ListRunsRequest) (*RunList, error) {
	if req == nil {
		req = &ListRunsRequest{}
	}
	page := normalizePage(req.Pagination)

	runs, total, err := s.runs.List(ctx, bill.RunFilter{
		DocumentID: req.DocumentID,
		Status:     req.Status,
		Limit:      page.PageSize,
		Offset:     page.Offset(),
	})
	if err != nil {
		return nil, err
	}

	items := make([]btypes.ExtractionRunDTO, 0, len(runs))
	for _, r := range runs {
		items = append(items, r.ToDTO())
	}
	page.Total = total
	return &RunList{Runs: items, Pagination: page}, nil
}

func (s *runServiceImpl) GetRunResults(ctx context.Context, runID common.ID) (*btypes.ExtractionResultDTO, error) {
	if err := runID.Validate(); err != nil {
		return nil, appErrors.InvalidParam("invalid run id: " + err.Error())
	}
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	entities, relations, err := s.runs.GetResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &btypes.ExtractionResultDTO{
		Run:       run.ToDTO(),
		Entities:  entityDTOs(entities),
		Relations: relationDTOs(relations),
	}, nil
}

func (s *runServiceImpl) ExportRun(ctx context.Context, runID common.ID) (*ExportResult, error) {
	if s.graph == nil {
		return nil, appErrors.New(appErrors.ErrCodeServiceUnavailable,
			"graph export requires a graph repository")
	}
	if err := runID.Validate(); err != nil {
		return nil, appErrors.InvalidParam("invalid run id: " + err.Error())
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != btypes.RunSucceeded {
		return nil, appErrors.New(appErrors.ErrCodeConflict,
			"only succeeded runs can be exported, run "+string(run.ID)+" is "+string(run.Status))
	}

	entities, relations, err := s.runs.GetResults(ctx, runID)
	if err != nil {
		return nil, err
	}

	if err := s.graph.ExportExtraction(ctx, run.DocumentID, entities, relations); err != nil {
		recordError(s.metrics, "neo4j", "export")
		return nil, err
	}

	result := &ExportResult{
		RunID:         run.ID,
		DocumentID:    run.DocumentID,
		EntityCount:   len(entities),
		RelationCount: len(relations),
	}

	// Post-export stats and artifact files are best effort.
	if stats, err := s.graph.Stats(ctx); err != nil {
		s.logger.Warn("Failed to read graph stats after export",
			logging.String("run_id", string(run.ID)), logging.Err(err))
	} else {
		dto := stats.ToDTO()
		result.GraphStats = &dto
	}
	result.Artifacts = s.writeArtifacts(ctx, run, entities, relations, result.GraphStats)

	s.logger.Info("Extraction run exported to graph",
		logging.String("run_id", string(run.ID)),
		logging.String("document_id", string(run.DocumentID)),
		logging.Int("entities", len(entities)),
		logging.Int("relations", len(relations)))

	return result, nil
}

func (s *runServiceImpl) PresignArtifact(ctx context.Context, runID common.ID, name string, expiry time.Duration) (string, error) {
	if s.store == nil {
		return "", appErrors.New(appErrors.ErrCodeServiceUnavailable,
			"artifact downloads require object storage")
	}
	if err := runID.Validate(); err != nil {
		return "", appErrors.InvalidParam("invalid run id: " + err.Error())
	}
	if name == "" {
		return "", appErrors.InvalidParam("artifact name is required")
	}
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return "", err
	}
	return s.store.PresignExport(ctx, runID, name, expiry)
}

func (s *runServiceImpl) ShareResults(ctx context.Context, runID common.ID, expiry time.Duration) (string, error) {
	if s.store == nil {
		return "", appErrors.New(appErrors.ErrCodeServiceUnavailable,
			"result sharing requires object storage")
	}

	results, err := s.GetRunResults(ctx, runID)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(results)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrCodeSerialization,
			"failed to encode result bundle")
	}

	// Temp objects expire on their own, so the link dies with the object.
	key := "results/" + string(runID) + ".json"
	if _, err := s.store.PutTemp(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return s.store.PresignTemp(ctx, key, expiry)
}

func (s *runServiceImpl) RunStatusCounts(ctx context.Context) (map[btypes.RunStatus]int64, error) {
	return s.runs.CountByStatus(ctx)
}

// ---------------------------------------------------------------------------
// Execution Helpers
// ---------------------------------------------------------------------------

// acquireDocumentLock serializes extraction per document across workers. The
// returned release function is safe to call when locking is disabled.
func (s *runServiceImpl) acquireDocumentLock(ctx context.Context, documentID common.ID) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	mu := s.locks.NewMutex("extraction:" + string(documentID))
	acquired, err := mu.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, appErrors.New(appErrors.ErrCodeConflict,
			"document "+string(documentID)+" has an extraction in progress")
	}
	return func() {
		// The caller's context may already be cancelled by the time the
		// run finishes, so release with a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mu.Unlock(releaseCtx); err != nil {
			s.logger.Warn("Failed to release document lock",
				logging.String("document_id", string(documentID)), logging.Err(err))
		}
	}, nil
}

func (s *runServiceImpl) buildPipeline(mode btypes.ExtractionMode) (pipeline.Pipeline, error) {
	pmode, err := pipeline.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	cfg := pipeline.DefaultConfig()
	cfg.Mode = pmode
	if s.parallelism > 0 {
		cfg.Parallelism = s.parallelism
	}
	return pipeline.New(cfg, pipeline.Dependencies{
		Chunker:       s.chunker,
		Annotator:     s.annotator,
		Extractor:     s.extractor,
		Merger:        s.merger,
		Canonicalizer: s.canonicalizer,
		Logger:        s.kv,
		Metrics:       s.pipeMetrics,
	})
}

// failRun marks a run failed and persists it best effort. Callers return the
// failed run as a result rather than an error, so at-least-once consumers
// acknowledge the job instead of redelivering a permanently failing one.
func (s *runServiceImpl) failRun(ctx context.Context, run *bill.ExtractionRun, reason string) {
	if err := run.Fail(reason); err != nil {
		s.logger.Error("Could not mark run failed",
			logging.String("run_id", string(run.ID)),
			logging.String("reason", reason),
			logging.Err(err))
		return
	}
	if err := s.runs.Update(ctx, run); err != nil {
		s.logger.Error("Failed to persist failed run",
			logging.String("run_id", string(run.ID)), logging.Err(err))
		recordError(s.metrics, "postgres", "run_update")
	}
	s.publishCompleted(ctx, run)
	recordError(s.metrics, "pipeline", "run_failed")
	s.logger.Error("Extraction run failed",
		logging.String("run_id", string(run.ID)),
		logging.String("document_id", string(run.DocumentID)),
		logging.String("reason", reason))
}

func (s *runServiceImpl) publishCompleted(ctx context.Context, run *bill.ExtractionRun) {
	if s.events == nil {
		return
	}
	completedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}
	msg := btypes.ExtractionCompletedMessage{
		RunID:       run.ID,
		DocumentID:  run.DocumentID,
		Status:      run.Status,
		Summary:     run.Summary,
		Error:       run.FailureReason,
		CompletedAt: completedAt,
	}
	if err := s.events.PublishExtractionCompleted(ctx, msg); err != nil {
		s.logger.Warn("Failed to publish run completion event",
			logging.String("run_id", string(run.ID)), logging.Err(err))
		recordError(s.metrics, "kafka", "publish")
	}
}

// indexResults pushes run output into the search index best effort.
func (s *runServiceImpl) indexResults(ctx context.Context, run *bill.ExtractionRun, entities []bill.ExtractedEntity, relations []bill.ExtractedRelation) {
	if s.index == nil {
		return
	}
	if _, err := s.index.IndexExtraction(ctx, run.DocumentID, run.ID,
		entityDTOs(entities), relationDTOs(relations)); err != nil {
		s.logger.Warn("Failed to index extraction results",
			logging.String("run_id", string(run.ID)), logging.Err(err))
		recordError(s.metrics, "opensearch", "index_write")
	}
}

// writeArtifacts drops JSON exports of the run into object storage and
// returns the names it managed to write.
func (s *runServiceImpl) writeArtifacts(ctx context.Context, run *bill.ExtractionRun, entities []bill.ExtractedEntity, relations []bill.ExtractedRelation, stats *btypes.GraphStatsDTO) []string {
	if s.store == nil {
		return nil
	}

	files := []struct {
		name string
		body interface{}
	}{
		{"entities.json", entityDTOs(entities)},
		{"relations.json", relationDTOs(relations)},
		{"graph.json", map[string]interface{}{
			"run_id":         run.ID,
			"document_id":    run.DocumentID,
			"entity_count":   len(entities),
			"relation_count": len(relations),
			"graph_stats":    stats,
		}},
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		data, err := json.Marshal(f.body)
		if err != nil {
			s.logger.Warn("Failed to encode export artifact",
				logging.String("artifact", f.name), logging.Err(err))
			continue
		}
		if _, err := s.store.PutExport(ctx, run.ID, f.name, data); err != nil {
			s.logger.Warn("Failed to write export artifact",
				logging.String("artifact", f.name), logging.Err(err))
			recordError(s.metrics, "minio", "export_write")
			continue
		}
		written = append(written, f.name)
	}
	return written
}

func (s *runServiceImpl) observeRun(mode btypes.ExtractionMode, success bool, started time.Time) {
	if s.metrics != nil {
		prometheus.RecordExtractionRun(s.metrics, string(mode), success, time.Since(started))
	}
}

// ---------------------------------------------------------------------------
// Converters
// ---------------------------------------------------------------------------

func domainEntities(items []icommon.Entity) []bill.ExtractedEntity {
	out := make([]bill.ExtractedEntity, 0, len(items))
	for _, e := range items {
		out = append(out, bill.ExtractedEntity{
			Text:       e.Text,
			Type:       e.Type,
			Start:      e.Start,
			End:        e.End,
			Confidence: e.Confidence,
			Context:    e.Context,
			Source:     string(e.Source),
		})
	}
	return out
}

func domainRelations(items []icommon.Relation) []bill.ExtractedRelation {
	out := make([]bill.ExtractedRelation, 0, len(items))
	for _, r := range items {
		out = append(out, bill.ExtractedRelation{
			Subject:    r.Subject,
			Predicate:  r.Predicate,
			Object:     r.Object,
			Type:       r.Type,
			Confidence: r.Confidence,
			Context:    r.Context,
			Source:     string(r.Source),
		})
	}
	return out
}

func entityDTOs(items []bill.ExtractedEntity) []btypes.EntityDTO {
	out := make([]btypes.EntityDTO, 0, len(items))
	for _, e := range items {
		out = append(out, e.ToDTO())
	}
	return out
}

func relationDTOs(items []bill.ExtractedRelation) []btypes.RelationDTO {
	out := make([]btypes.RelationDTO, 0, len(items))
	for _, r := range items {
		out = append(out, r.ToDTO())
	}
	return out
}
