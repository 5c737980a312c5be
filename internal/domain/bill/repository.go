package bill

import (
	"context"

	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	SourceName string
	Limit      int
	Offset     int
}

// RunFilter narrows extraction run listings.
type RunFilter struct {
	DocumentID common.ID
	Status     btypes.RunStatus
	Limit      int
	Offset     int
}

// GraphStats summarizes the exported knowledge graph.
type GraphStats struct {
	NodeCount    int64
	EdgeCount    int64
	NodesByLabel map[string]int64
	EdgesByType  map[string]int64
}

// ToDTO converts the stats to their transport representation.
func (g *GraphStats) ToDTO() btypes.GraphStatsDTO {
	return btypes.GraphStatsDTO{
		NodeCount:    g.NodeCount,
		EdgeCount:    g.EdgeCount,
		NodesByLabel: g.NodesByLabel,
		EdgesByType:  g.EdgesByType,
	}
}

// DocumentRepository defines the persistence contract for documents.
type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id common.ID) (*Document, error)

	// GetByContentHash returns the document with the given content hash, or
	// a not-found error.  Ingestion uses it to dedupe unchanged re-uploads.
	GetByContentHash(ctx context.Context, hash string) (*Document, error)

	// List returns a page of documents (without raw text) and the total
	// count matching the filter.
	List(ctx context.Context, filter DocumentFilter) ([]*Document, int64, error)

	Delete(ctx context.Context, id common.ID) error
}

// ExtractionRunRepository defines the persistence contract for extraction
// runs and their results.
type ExtractionRunRepository interface {
	Create(ctx context.Context, r *ExtractionRun) error
	GetByID(ctx context.Context, id common.ID) (*ExtractionRun, error)

	// Update persists status transitions and completion accounting.
	Update(ctx context.Context, r *ExtractionRun) error

	// List returns a page of runs and the total count matching the filter,
	// newest first.
	List(ctx context.Context, filter RunFilter) ([]*ExtractionRun, int64, error)

	// SaveResults replaces the stored entities and relations of a run.
	SaveResults(ctx context.Context, runID common.ID, entities []ExtractedEntity, relations []ExtractedRelation) error

	// GetResults returns the stored entities and relations of a run in
	// their persisted order.
	GetResults(ctx context.Context, runID common.ID) ([]ExtractedEntity, []ExtractedRelation, error)

	CountByStatus(ctx context.Context) (map[btypes.RunStatus]int64, error)
}

// KnowledgeGraphRepository defines the export contract for the knowledge
// graph built from extraction results.
type KnowledgeGraphRepository interface {
	// ExportExtraction merges a run's entities and relations into the
	// graph.  Nodes merge on canonical text so several documents
	// accumulate into one combined graph.
	ExportExtraction(ctx context.Context, documentID common.ID, entities []ExtractedEntity, relations []ExtractedRelation) error

	// Stats returns node and edge counts grouped by label and type.
	Stats(ctx context.Context) (*GraphStats, error)

	// RelatedEntities returns the canonical texts reachable from the given
	// entity within depth hops.
	RelatedEntities(ctx context.Context, text string, depth int) ([]string, error)
}
