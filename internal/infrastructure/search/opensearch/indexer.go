package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

const (
	defaultIndexPrefix   = "legisgraph"
	defaultBulkBatchSize = 500
	defaultRefreshPolicy = "false"

	entitiesIndexSuffix  = "-entities"
	relationsIndexSuffix = "-relations"
)

// ─────────────────────────────────────────────────────────────────────────────
// Indices
// ─────────────────────────────────────────────────────────────────────────────

// EntitiesIndex returns the entity index name for a prefix.
func EntitiesIndex(prefix string) string {
	return prefix + entitiesIndexSuffix
}

// RelationsIndex returns the relation index name for a prefix.
func RelationsIndex(prefix string) string {
	return prefix + relationsIndexSuffix
}

// IndexMapping is the body of an index-creation request.
type IndexMapping struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
	Mappings map[string]interface{} `json:"mappings,omitempty"`
}

// EntityIndexMapping defines the entity index. Match fields carry the
// english analyzer; filter fields stay keywords.
func EntityIndexMapping() IndexMapping {
	return IndexMapping{
		Settings: map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		Mappings: map[string]interface{}{
			"properties": map[string]interface{}{
				"document_id": map[string]interface{}{"type": "keyword"},
				"run_id":      map[string]interface{}{"type": "keyword"},
				"text": map[string]interface{}{
					"type":     "text",
					"analyzer": "english",
					"fields": map[string]interface{}{
						"raw": map[string]interface{}{"type": "keyword"},
					},
				},
				"type":       map[string]interface{}{"type": "keyword"},
				"start_char": map[string]interface{}{"type": "integer"},
				"end_char":   map[string]interface{}{"type": "integer"},
				"confidence": map[string]interface{}{"type": "float"},
				"context":    map[string]interface{}{"type": "text", "analyzer": "english"},
				"source":     map[string]interface{}{"type": "keyword"},
				"indexed_at": map[string]interface{}{"type": "date"},
			},
		},
	}
}

// RelationIndexMapping defines the relation index. Subjects and objects are
// searchable text; predicates are exact keywords.
func RelationIndexMapping() IndexMapping {
	return IndexMapping{
		Settings: map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		Mappings: map[string]interface{}{
			"properties": map[string]interface{}{
				"document_id": map[string]interface{}{"type": "keyword"},
				"run_id":      map[string]interface{}{"type": "keyword"},
				"subject": map[string]interface{}{
					"type":     "text",
					"analyzer": "english",
					"fields": map[string]interface{}{
						"raw": map[string]interface{}{"type": "keyword"},
					},
				},
				"predicate": map[string]interface{}{"type": "keyword"},
				"object": map[string]interface{}{
					"type":     "text",
					"analyzer": "english",
					"fields": map[string]interface{}{
						"raw": map[string]interface{}{"type": "keyword"},
					},
				},
				"relation_type": map[string]interface{}{"type": "keyword"},
				"confidence":    map[string]interface{}{"type": "float"},
				"context":       map[string]interface{}{"type": "text", "analyzer": "english"},
				"source":        map[string]interface{}{"type": "keyword"},
				"indexed_at":    map[string]interface{}{"type": "date"},
			},
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Indexer
// ─────────────────────────────────────────────────────────────────────────────

// IndexerOption customises the indexer.
type IndexerOption func(*Indexer)

// WithRefreshPolicy overrides when writes become visible to search. Valid
// values are "false", "true" and "wait_for".
func WithRefreshPolicy(policy string) IndexerOption {
	return func(i *Indexer) {
		i.refresh = policy
	}
}

// Indexer manages the entity and relation indices and writes canonical
// extraction output into them.
type Indexer struct {
	client    *Client
	prefix    string
	batchSize int
	refresh   string
	logger    logging.Logger
}

// NewIndexer builds an indexer for the configured index prefix.
func NewIndexer(client *Client, cfg config.OpenSearchConfig, log logging.Logger, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		client:    client,
		prefix:    cfg.IndexPrefix,
		batchSize: cfg.BulkBatchSize,
		refresh:   defaultRefreshPolicy,
		logger:    log,
	}
	if idx.prefix == "" {
		idx.prefix = defaultIndexPrefix
	}
	if idx.batchSize <= 0 {
		idx.batchSize = defaultBulkBatchSize
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// EnsureIndexes creates the entity and relation indices when missing. Safe
// to run at every startup.
func (i *Indexer) EnsureIndexes(ctx context.Context) error {
	indices := []struct {
		name    string
		mapping IndexMapping
	}{
		{EntitiesIndex(i.prefix), EntityIndexMapping()},
		{RelationsIndex(i.prefix), RelationIndexMapping()},
	}

	for _, idx := range indices {
		if err := i.CreateIndex(ctx, idx.name, idx.mapping); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndex creates an index with the given mapping. Creating an index
// that already exists is a no-op.
func (i *Indexer) CreateIndex(ctx context.Context, name string, mapping IndexMapping) error {
	exists, err := i.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode index mapping")
	}

	req := opensearchapi.IndicesCreateRequest{
		Index: name,
		Body:  bytes.NewReader(body),
	}

	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeIndexCreate, "failed to create index")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		createErr := decodeError(resp, appErrors.ErrCodeIndexCreate, "failed to create index")
		// Another instance may create the index between the exists check
		// and ours.
		if strings.Contains(createErr.Error(), "resource_already_exists") {
			return nil
		}
		return createErr
	}

	i.logger.Info("Search index created", logging.String("index", name))
	return nil
}

// DeleteIndex drops an index. A missing index is not an error.
func (i *Indexer) DeleteIndex(ctx context.Context, name string) error {
	req := opensearchapi.IndicesDeleteRequest{Index: []string{name}}

	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeIndexWrite, "failed to delete index")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil
	}
	if resp.IsError() {
		return decodeError(resp, appErrors.ErrCodeIndexWrite, "failed to delete index")
	}

	i.logger.Warn("Search index deleted", logging.String("index", name))
	return nil
}

// IndexExists checks whether an index is present.
func (i *Indexer) IndexExists(ctx context.Context, name string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{name}}

	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrCodeIndexCreate, "failed to check index existence")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, decodeError(resp, appErrors.ErrCodeIndexCreate, "failed to check index existence")
}

// ─────────────────────────────────────────────────────────────────────────────
// Bulk writes
// ─────────────────────────────────────────────────────────────────────────────

// BulkDoc pairs a document with the identifier it is indexed under.
type BulkDoc struct {
	ID  string
	Doc interface{}
}

// BulkItemError describes one document that failed to index.
type BulkItemError struct {
	DocID     string
	ErrorType string
	Reason    string
}

// BulkResult aggregates the outcome of bulk indexing.
type BulkResult struct {
	Succeeded int
	Failed    int
	Errors    []BulkItemError
}

func (r *BulkResult) merge(other *BulkResult) {
	if other == nil {
		return
	}
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// BulkIndex writes documents in batches of the configured size. Per-document
// failures are collected in the result; a transport or whole-batch failure
// aborts the remaining batches.
func (i *Indexer) BulkIndex(ctx context.Context, index string, docs []BulkDoc) (*BulkResult, error) {
	result := &BulkResult{}
	if len(docs) == 0 {
		return result, nil
	}

	for start := 0; start < len(docs); start += i.batchSize {
		end := start + i.batchSize
		if end > len(docs) {
			end = len(docs)
		}

		payload, encErrs := encodeBulk(index, docs[start:end])
		result.Failed += len(encErrs)
		result.Errors = append(result.Errors, encErrs...)
		if payload.Len() == 0 {
			continue
		}

		resp, err := i.sendBulk(ctx, payload)
		if err != nil {
			return result, err
		}
		applyBulkResponse(result, resp)
	}

	i.logger.Info("Bulk index completed",
		logging.String("index", index),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))

	return result, nil
}

type bulkAction struct {
	Index bulkActionTarget `json:"index"`
}

type bulkActionTarget struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

// encodeBulk renders one NDJSON payload for a batch. Documents that cannot
// be serialized are reported instead of aborting the batch.
func encodeBulk(index string, docs []BulkDoc) (*bytes.Buffer, []BulkItemError) {
	var buf bytes.Buffer
	var errs []BulkItemError

	for _, d := range docs {
		body, err := json.Marshal(d.Doc)
		if err != nil {
			errs = append(errs, BulkItemError{
				DocID:     d.ID,
				ErrorType: "serialization_error",
				Reason:    err.Error(),
			})
			continue
		}

		meta, err := json.Marshal(bulkAction{Index: bulkActionTarget{Index: index, ID: d.ID}})
		if err != nil {
			errs = append(errs, BulkItemError{
				DocID:     d.ID,
				ErrorType: "serialization_error",
				Reason:    err.Error(),
			})
			continue
		}

		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(body)
		buf.WriteByte('\n')
	}

	return &buf, errs
}

type bulkItemStatus struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemStatus `json:"items"`
}

func (i *Indexer) sendBulk(ctx context.Context, payload *bytes.Buffer) (*bulkResponse, error) {
	req := opensearchapi.BulkRequest{
		Body:    bytes.NewReader(payload.Bytes()),
		Refresh: i.refresh,
	}

	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeIndexWrite, "bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, decodeError(resp, appErrors.ErrCodeIndexWrite, "bulk request rejected")
	}

	var bulkResp bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode bulk response")
	}
	return &bulkResp, nil
}

func applyBulkResponse(result *BulkResult, resp *bulkResponse) {
	if !resp.Errors {
		result.Succeeded += len(resp.Items)
		return
	}

	for _, item := range resp.Items {
		// Each item is a single-key object named after the bulk action.
		for _, status := range item {
			if status.Status >= 200 && status.Status < 300 {
				result.Succeeded++
				continue
			}
			result.Failed++
			result.Errors = append(result.Errors, BulkItemError{
				DocID:     status.ID,
				ErrorType: status.Error.Type,
				Reason:    status.Error.Reason,
			})
		}
	}
}

// DeleteByDocument removes every indexed row belonging to a document and
// returns how many were deleted.
func (i *Indexer) DeleteByDocument(ctx context.Context, index string, documentID common.ID) (int64, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"document_id": string(documentID)},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode delete query")
	}

	req := opensearchapi.DeleteByQueryRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}
	// delete_by_query only understands boolean refresh.
	if i.refresh != defaultRefreshPolicy {
		refresh := true
		req.Refresh = &refresh
	}

	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrCodeIndexWrite, "failed to delete indexed documents")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, decodeError(resp, appErrors.ErrCodeIndexWrite, "failed to delete indexed documents")
	}

	var delResp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&delResp); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode delete response")
	}

	return delResp.Deleted, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Extraction output
// ─────────────────────────────────────────────────────────────────────────────

// EntityDocument is the indexed form of one canonical entity.
type EntityDocument struct {
	DocumentID common.ID `json:"document_id"`
	RunID      common.ID `json:"run_id"`
	Text       string    `json:"text"`
	Type       string    `json:"type,omitempty"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	Confidence float64   `json:"confidence"`
	Context    string    `json:"context,omitempty"`
	Source     string    `json:"source"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// RelationDocument is the indexed form of one canonical relation triple.
type RelationDocument struct {
	DocumentID common.ID `json:"document_id"`
	RunID      common.ID `json:"run_id"`
	Subject    string    `json:"subject"`
	Predicate  string    `json:"predicate"`
	Object     string    `json:"object"`
	Type       string    `json:"relation_type,omitempty"`
	Confidence float64   `json:"confidence"`
	Context    string    `json:"context,omitempty"`
	Source     string    `json:"source"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// IndexExtraction replaces the indexed entities and relations for a document
// with the canonical output of the given run. Prior rows are removed first
// so re-extraction never leaves stale hits behind.
func (i *Indexer) IndexExtraction(ctx context.Context, documentID, runID common.ID, entities []btypes.EntityDTO, relations []btypes.RelationDTO) (*BulkResult, error) {
	now := time.Now().UTC()
	result := &BulkResult{}

	entIndex := EntitiesIndex(i.prefix)
	if _, err := i.DeleteByDocument(ctx, entIndex, documentID); err != nil {
		return result, err
	}
	entRes, err := i.BulkIndex(ctx, entIndex, entityDocs(documentID, runID, entities, now))
	result.merge(entRes)
	if err != nil {
		return result, err
	}

	relIndex := RelationsIndex(i.prefix)
	if _, err := i.DeleteByDocument(ctx, relIndex, documentID); err != nil {
		return result, err
	}
	relRes, err := i.BulkIndex(ctx, relIndex, relationDocs(documentID, runID, relations, now))
	result.merge(relRes)
	if err != nil {
		return result, err
	}

	i.logger.Info("Indexed extraction output",
		logging.String("document_id", string(documentID)),
		logging.String("run_id", string(runID)),
		logging.Int("entities", len(entities)),
		logging.Int("relations", len(relations)),
		logging.Int("failed", result.Failed))

	return result, nil
}

// RemoveDocument deletes every indexed entity and relation belonging to a
// document, typically when the document itself is deleted. It returns how
// many rows were removed across both indexes.
func (i *Indexer) RemoveDocument(ctx context.Context, documentID common.ID) (int64, error) {
	entDeleted, err := i.DeleteByDocument(ctx, EntitiesIndex(i.prefix), documentID)
	if err != nil {
		return entDeleted, err
	}
	relDeleted, err := i.DeleteByDocument(ctx, RelationsIndex(i.prefix), documentID)
	if err != nil {
		return entDeleted + relDeleted, err
	}

	i.logger.Debug("Removed indexed document",
		logging.String("document_id", string(documentID)),
		logging.Int64("deleted", entDeleted+relDeleted))
	return entDeleted + relDeleted, nil
}

func entityDocs(documentID, runID common.ID, entities []btypes.EntityDTO, indexedAt time.Time) []BulkDoc {
	docs := make([]BulkDoc, 0, len(entities))
	for n, e := range entities {
		docs = append(docs, BulkDoc{
			ID: fmt.Sprintf("%s:%d", documentID, n),
			Doc: EntityDocument{
				DocumentID: documentID,
				RunID:      runID,
				Text:       e.Text,
				Type:       e.Type,
				StartChar:  e.StartChar,
				EndChar:    e.EndChar,
				Confidence: e.Confidence,
				Context:    e.Context,
				Source:     e.Source,
				IndexedAt:  indexedAt,
			},
		})
	}
	return docs
}

func relationDocs(documentID, runID common.ID, relations []btypes.RelationDTO, indexedAt time.Time) []BulkDoc {
	docs := make([]BulkDoc, 0, len(relations))
	for n, r := range relations {
		docs = append(docs, BulkDoc{
			ID: fmt.Sprintf("%s:%d", documentID, n),
			Doc: RelationDocument{
				DocumentID: documentID,
				RunID:      runID,
				Subject:    r.Subject,
				Predicate:  r.Predicate,
				Object:     r.Object,
				Type:       r.Type,
				Confidence: r.Confidence,
				Context:    r.Context,
				Source:     r.Source,
				IndexedAt:  indexedAt,
			},
		})
	}
	return docs
}
