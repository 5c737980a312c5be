package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegisGraph/internal/application/extraction"
	"github.com/turtacn/LegisGraph/internal/application/query"
	"github.com/turtacn/LegisGraph/internal/infrastructure/search/opensearch"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeIngestService implements extraction.IngestService with function
// fields, the platform's mock convention.
type fakeIngestService struct {
	ingestFn func(ctx context.Context, req *btypes.IngestRequest) (*btypes.DocumentDTO, error)
	getFn    func(ctx context.Context, id common.ID) (*btypes.DocumentDTO, error)
	listFn   func(ctx context.Context, req *extraction.ListDocumentsRequest) (*extraction.DocumentList, error)
	deleteFn func(ctx context.Context, id common.ID) error
}

func (f *fakeIngestService) IngestDocument(ctx context.Context, req *btypes.IngestRequest) (*btypes.DocumentDTO, error) {
	return f.ingestFn(ctx, req)
}

func (f *fakeIngestService) GetDocument(ctx context.Context, id common.ID) (*btypes.DocumentDTO, error) {
	return f.getFn(ctx, id)
}

func (f *fakeIngestService) ListDocuments(ctx context.Context, req *extraction.ListDocumentsRequest) (*extraction.DocumentList, error) {
	return f.listFn(ctx, req)
}

func (f *fakeIngestService) DeleteDocument(ctx context.Context, id common.ID) error {
	return f.deleteFn(ctx, id)
}

// fakeRunService implements extraction.RunService.
type fakeRunService struct {
	startFn    func(ctx context.Context, req *btypes.ExtractRequest) (*btypes.ExtractionRunDTO, error)
	executeFn  func(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error)
	getFn      func(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error)
	listFn     func(ctx context.Context, req *extraction.ListRunsRequest) (*extraction.RunList, error)
	resultsFn  func(ctx context.Context, runID common.ID) (*btypes.ExtractionResultDTO, error)
	exportFn   func(ctx context.Context, runID common.ID) (*extraction.ExportResult, error)
	artifactFn func(ctx context.Context, runID common.ID, name string, expiry time.Duration) (string, error)
	shareFn    func(ctx context.Context, runID common.ID, expiry time.Duration) (string, error)
	countsFn   func(ctx context.Context) (map[btypes.RunStatus]int64, error)
}

func (f *fakeRunService) StartExtraction(ctx context.Context, req *btypes.ExtractRequest) (*btypes.ExtractionRunDTO, error) {
	return f.startFn(ctx, req)
}

func (f *fakeRunService) ExecuteRun(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error) {
	return f.executeFn(ctx, runID)
}

func (f *fakeRunService) GetRun(ctx context.Context, runID common.ID) (*btypes.ExtractionRunDTO, error) {
	return f.getFn(ctx, runID)
}

func (f *fakeRunService) ListRuns(ctx context.Context, req *extraction.ListRunsRequest) (*extraction.RunList, error) {
	return f.listFn(ctx, req)
}

func (f *fakeRunService) GetRunResults(ctx context.Context, runID common.ID) (*btypes.ExtractionResultDTO, error) {
	return f.resultsFn(ctx, runID)
}

func (f *fakeRunService) ExportRun(ctx context.Context, runID common.ID) (*extraction.ExportResult, error) {
	return f.exportFn(ctx, runID)
}

func (f *fakeRunService) PresignArtifact(ctx context.Context, runID common.ID, name string, expiry time.Duration) (string, error) {
	return f.artifactFn(ctx, runID, name, expiry)
}

func (f *fakeRunService) ShareResults(ctx context.Context, runID common.ID, expiry time.Duration) (string, error) {
	return f.shareFn(ctx, runID, expiry)
}

func (f *fakeRunService) RunStatusCounts(ctx context.Context) (map[btypes.RunStatus]int64, error) {
	return f.countsFn(ctx)
}

// fakeSearchService implements query.SearchService.
type fakeSearchService struct {
	entitiesFn  func(ctx context.Context, req *btypes.EntitySearchRequest) (*opensearch.EntitySearchResult, error)
	relationsFn func(ctx context.Context, req *btypes.RelationSearchRequest) (*opensearch.RelationSearchResult, error)
	statsFn     func(ctx context.Context) (*btypes.GraphStatsDTO, error)
	relatedFn   func(ctx context.Context, req *query.RelatedEntitiesRequest) (*query.RelatedEntitiesResult, error)
}

func (f *fakeSearchService) SearchEntities(ctx context.Context, req *btypes.EntitySearchRequest) (*opensearch.EntitySearchResult, error) {
	return f.entitiesFn(ctx, req)
}

func (f *fakeSearchService) SearchRelations(ctx context.Context, req *btypes.RelationSearchRequest) (*opensearch.RelationSearchResult, error) {
	return f.relationsFn(ctx, req)
}

func (f *fakeSearchService) GraphStats(ctx context.Context) (*btypes.GraphStatsDTO, error) {
	return f.statsFn(ctx)
}

func (f *fakeSearchService) RelatedEntities(ctx context.Context, req *query.RelatedEntitiesRequest) (*query.RelatedEntitiesResult, error) {
	return f.relatedFn(ctx, req)
}
