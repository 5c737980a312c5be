// Package repositories provides the Neo4j-backed implementation of the bill
// domain's knowledge graph repository.
package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/LegisGraph/internal/domain/bill"
	driver "github.com/turtacn/LegisGraph/internal/infrastructure/database/neo4j"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

const (
	defaultBatchSize  = 500
	maxTraversalDepth = 5
)

// knowledgeGraphRepo persists extraction results as a property graph.  Nodes
// carry a shared Entity label and merge on canonical text, so exports from
// several documents accumulate into one combined graph.
type knowledgeGraphRepo struct {
	driver    driver.DriverInterface
	batchSize int
	log       logging.Logger
}

// NewKnowledgeGraphRepository returns the Neo4j-backed knowledge graph
// repository.  batchSize bounds the rows sent per UNWIND write; values below
// one fall back to the default.
func NewKnowledgeGraphRepository(d driver.DriverInterface, batchSize int, log logging.Logger) bill.KnowledgeGraphRepository {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &knowledgeGraphRepo{
		driver:    d,
		batchSize: batchSize,
		log:       log,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExportExtraction
// ─────────────────────────────────────────────────────────────────────────────

// Node and edge labels cannot be parameterised in Cypher, so rows are grouped
// by sanitised label and each group runs its own UNWIND statement.  Within a
// group the fresher CASE keeps the highest confidence seen across documents
// and updates the dependent properties together with it.
const entityMergeBody = `
UNWIND $batch AS row
MERGE (e:Entity {text: row.text})
ON CREATE SET e.created_at = datetime()
WITH e, row, (e.confidence IS NULL OR row.confidence > e.confidence) AS fresher
SET %se.entity_type = row.entity_type,
    e.confidence = CASE WHEN fresher THEN row.confidence ELSE e.confidence END,
    e.source = CASE WHEN fresher THEN row.source ELSE e.source END,
    e.document_ids = CASE
        WHEN e.document_ids IS NULL THEN [row.document_id]
        WHEN row.document_id IN e.document_ids THEN e.document_ids
        ELSE e.document_ids + row.document_id
    END`

const relationMergeBody = `
UNWIND $batch AS row
MERGE (s:Entity {text: row.subject})
MERGE (o:Entity {text: row.object})
MERGE (s)-[r:%s {predicate: row.predicate}]->(o)
ON CREATE SET r.created_at = datetime()
WITH r, row, (r.confidence IS NULL OR row.confidence > r.confidence) AS fresher
SET r.relation_type = row.relation_type,
    r.confidence = CASE WHEN fresher THEN row.confidence ELSE r.confidence END,
    r.context = CASE WHEN fresher THEN row.context ELSE r.context END,
    r.source = CASE WHEN fresher THEN row.source ELSE r.source END,
    r.document_ids = CASE
        WHEN r.document_ids IS NULL THEN [row.document_id]
        WHEN row.document_id IN r.document_ids THEN r.document_ids
        ELSE r.document_ids + row.document_id
    END`

// ExportExtraction merges a run's entities and relations into the graph.
// Entities are written before relations so typed nodes exist by the time
// edges merge their endpoints.
func (r *knowledgeGraphRepo) ExportExtraction(ctx context.Context, documentID common.ID, entities []bill.ExtractedEntity, relations []bill.ExtractedRelation) error {
	if len(entities) == 0 && len(relations) == 0 {
		r.log.Debug("KnowledgeGraphRepo.ExportExtraction: nothing to export",
			logging.String("document_id", string(documentID)))
		return nil
	}

	if err := r.exportEntities(ctx, documentID, entities); err != nil {
		return err
	}
	if err := r.exportRelations(ctx, documentID, relations); err != nil {
		return err
	}

	r.log.Info("Exported extraction to knowledge graph",
		logging.String("document_id", string(documentID)),
		logging.Int("entities", len(entities)),
		logging.Int("relations", len(relations)))
	return nil
}

func (r *knowledgeGraphRepo) exportEntities(ctx context.Context, documentID common.ID, entities []bill.ExtractedEntity) error {
	groups := make(map[string][]map[string]interface{})
	for _, e := range entities {
		label := labelForType(e.Type)
		groups[label] = append(groups[label], map[string]interface{}{
			"text":        e.Text,
			"entity_type": e.Type,
			"confidence":  e.Confidence,
			"source":      e.Source,
			"document_id": string(documentID),
		})
	}

	for _, label := range sortedKeys(groups) {
		query := entityMergeQuery(label)
		for _, batch := range chunkRows(groups[label], r.batchSize) {
			if err := r.runWrite(ctx, query, batch); err != nil {
				return appErrors.Wrap(err, appErrors.ErrCodeGraphExport, "failed to merge entity nodes")
			}
		}
	}
	return nil
}

func (r *knowledgeGraphRepo) exportRelations(ctx context.Context, documentID common.ID, relations []bill.ExtractedRelation) error {
	groups := make(map[string][]map[string]interface{})
	for _, rel := range relations {
		relType := relTypeForPredicate(rel.Predicate)
		groups[relType] = append(groups[relType], map[string]interface{}{
			"subject":       rel.Subject,
			"predicate":     rel.Predicate,
			"object":        rel.Object,
			"relation_type": rel.Type,
			"confidence":    rel.Confidence,
			"context":       rel.Context,
			"source":        rel.Source,
			"document_id":   string(documentID),
		})
	}

	for _, relType := range sortedKeys(groups) {
		query := fmt.Sprintf(relationMergeBody, relType)
		for _, batch := range chunkRows(groups[relType], r.batchSize) {
			if err := r.runWrite(ctx, query, batch); err != nil {
				return appErrors.Wrap(err, appErrors.ErrCodeGraphExport, "failed to merge relation edges")
			}
		}
	}
	return nil
}

func (r *knowledgeGraphRepo) runWrite(ctx context.Context, query string, batch []map[string]interface{}) error {
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (interface{}, error) {
		_, err := tx.Run(ctx, query, map[string]any{"batch": batch})
		return nil, err
	})
	return err
}

func entityMergeQuery(label string) string {
	typeLabel := ""
	if label != "" {
		typeLabel = "e:" + label + ", "
	}
	return fmt.Sprintf(entityMergeBody, typeLabel)
}

// ─────────────────────────────────────────────────────────────────────────────
// Stats
// ─────────────────────────────────────────────────────────────────────────────

const (
	nodeCountQuery = `MATCH (n:Entity) RETURN count(n) AS count`

	edgeCountQuery = `MATCH (:Entity)-[r]->(:Entity) RETURN count(r) AS count`

	nodesByLabelQuery = `
MATCH (n:Entity)
WITH n, [l IN labels(n) WHERE l <> 'Entity'] AS typeLabels
UNWIND (CASE WHEN size(typeLabels) = 0 THEN ['Entity'] ELSE typeLabels END) AS label
RETURN label, count(*) AS count
ORDER BY label`

	edgesByTypeQuery = `
MATCH (:Entity)-[r]->(:Entity)
RETURN type(r) AS type, count(*) AS count
ORDER BY type`
)

// Stats returns node and edge counts grouped by label and relationship type.
// Nodes that never received a type label are reported under the shared
// Entity label.
func (r *knowledgeGraphRepo) Stats(ctx context.Context) (*bill.GraphStats, error) {
	r.log.Debug("KnowledgeGraphRepo.Stats")

	result, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (interface{}, error) {
		stats := &bill.GraphStats{
			NodesByLabel: make(map[string]int64),
			EdgesByType:  make(map[string]int64),
		}

		var err error
		if stats.NodeCount, err = runCount(ctx, tx, nodeCountQuery); err != nil {
			return nil, err
		}
		if stats.EdgeCount, err = runCount(ctx, tx, edgeCountQuery); err != nil {
			return nil, err
		}

		labels, err := runGroupedCount(ctx, tx, nodesByLabelQuery, "label")
		if err != nil {
			return nil, err
		}
		for _, g := range labels {
			stats.NodesByLabel[g.Key] = g.Count
		}

		types, err := runGroupedCount(ctx, tx, edgesByTypeQuery, "type")
		if err != nil {
			return nil, err
		}
		for _, g := range types {
			stats.EdgesByType[g.Key] = g.Count
		}
		return stats, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeGraphQuery, "failed to collect graph stats")
	}

	stats, ok := result.(*bill.GraphStats)
	if !ok {
		return nil, appErrors.New(appErrors.ErrCodeGraphQuery, "unexpected graph stats result type")
	}
	return stats, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// RelatedEntities
// ─────────────────────────────────────────────────────────────────────────────

// RelatedEntities returns the canonical texts reachable from the given
// entity within depth hops, in lexical order.  Depth is clamped to [1, 5];
// an unknown starting entity yields an empty result.
func (r *knowledgeGraphRepo) RelatedEntities(ctx context.Context, text string, depth int) ([]string, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > maxTraversalDepth {
		depth = maxTraversalDepth
	}

	// Variable-length bounds cannot be parameterised, so the clamped depth
	// is spliced into the pattern.
	query := fmt.Sprintf(`
MATCH (s:Entity {text: $text})-[*1..%d]-(n:Entity)
WHERE n.text <> $text
RETURN DISTINCT n.text AS text
ORDER BY text`, depth)

	result, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]any{"text": text})
		if err != nil {
			return nil, err
		}
		return driver.CollectRecords(ctx, res, mapTextRecord)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeGraphQuery, "failed to query related entities")
	}

	texts, _ := result.([]string)
	return texts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Record mappers
// ─────────────────────────────────────────────────────────────────────────────

type groupedCount struct {
	Key   string
	Count int64
}

func runCount(ctx context.Context, tx driver.Transaction, query string) (int64, error) {
	res, err := tx.Run(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	return driver.ExtractSingleRecord(ctx, res, mapCountRecord)
}

func runGroupedCount(ctx context.Context, tx driver.Transaction, query, column string) ([]groupedCount, error) {
	res, err := tx.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	return driver.CollectRecords(ctx, res, mapGroupedCount(column))
}

func mapCountRecord(rec *neo4j.Record) (int64, error) {
	v, ok := rec.Get("count")
	if !ok {
		return 0, appErrors.New(appErrors.ErrCodeGraphQuery, "count column missing from graph response")
	}
	count, ok := v.(int64)
	if !ok {
		return 0, appErrors.New(appErrors.ErrCodeGraphQuery, "count column has unexpected type")
	}
	return count, nil
}

func mapGroupedCount(column string) func(*neo4j.Record) (groupedCount, error) {
	return func(rec *neo4j.Record) (groupedCount, error) {
		v, ok := rec.Get(column)
		if !ok {
			return groupedCount{}, appErrors.New(appErrors.ErrCodeGraphQuery, "grouped count missing "+column+" column")
		}
		key, ok := v.(string)
		if !ok {
			return groupedCount{}, appErrors.New(appErrors.ErrCodeGraphQuery, column+" column has unexpected type")
		}
		count, err := mapCountRecord(rec)
		if err != nil {
			return groupedCount{}, err
		}
		return groupedCount{Key: key, Count: count}, nil
	}
}

func mapTextRecord(rec *neo4j.Record) (string, error) {
	v, ok := rec.Get("text")
	if !ok {
		return "", appErrors.New(appErrors.ErrCodeGraphQuery, "text column missing from graph response")
	}
	text, ok := v.(string)
	if !ok {
		return "", appErrors.New(appErrors.ErrCodeGraphQuery, "text column has unexpected type")
	}
	return text, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Label sanitising
// ─────────────────────────────────────────────────────────────────────────────

// labelForType converts an entity type into a node label.  Untyped entities
// return the empty string and keep only the shared Entity label.
func labelForType(entityType string) string {
	return sanitizeToken(entityType)
}

// relTypeForPredicate converts a canonical predicate into a relationship
// type, falling back to RELATED_TO when nothing survives sanitising.
func relTypeForPredicate(predicate string) string {
	relType := sanitizeToken(predicate)
	if relType == "" {
		return "RELATED_TO"
	}
	return relType
}

// sanitizeToken uppercases a value and reduces it to letters, digits and
// single underscores so it can be spliced into Cypher as a label or
// relationship type.
func sanitizeToken(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}

	token := b.String()
	if token == "" {
		return ""
	}
	if token[0] >= '0' && token[0] <= '9' {
		token = "N" + token
	}
	return token
}

// ─────────────────────────────────────────────────────────────────────────────
// Batching
// ─────────────────────────────────────────────────────────────────────────────

func sortedKeys(m map[string][]map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func chunkRows(rows []map[string]interface{}, size int) [][]map[string]interface{} {
	var chunks [][]map[string]interface{}
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
