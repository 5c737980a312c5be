package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ─────────────────────────────────────────────────────────────────────────────
// Results
// ─────────────────────────────────────────────────────────────────────────────

// EntityHit is one entity match with its relevance score.
type EntityHit struct {
	Score  float64        `json:"score"`
	Entity EntityDocument `json:"entity"`
}

// EntitySearchResult carries one page of entity matches. Pagination.Total
// holds the full match count.
type EntitySearchResult struct {
	Pagination common.Pagination `json:"pagination"`
	TookMs     int64             `json:"took_ms"`
	Hits       []EntityHit       `json:"hits"`
}

// RelationHit is one relation match with its relevance score.
type RelationHit struct {
	Score    float64          `json:"score"`
	Relation RelationDocument `json:"relation"`
}

// RelationSearchResult carries one page of relation matches.
type RelationSearchResult struct {
	Pagination common.Pagination `json:"pagination"`
	TookMs     int64             `json:"took_ms"`
	Hits       []RelationHit     `json:"hits"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Searcher
// ─────────────────────────────────────────────────────────────────────────────

// Searcher answers entity and relation lookups against the search indices.
type Searcher struct {
	client *Client
	prefix string
	logger logging.Logger
}

// NewSearcher builds a searcher for the configured index prefix.
func NewSearcher(client *Client, cfg config.OpenSearchConfig, log logging.Logger) *Searcher {
	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = defaultIndexPrefix
	}
	return &Searcher{
		client: client,
		prefix: prefix,
		logger: log,
	}
}

// SearchEntities matches the query against entity text and context, with
// optional type, document and confidence-floor filters.
func (s *Searcher) SearchEntities(ctx context.Context, req btypes.EntitySearchRequest) (*EntitySearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeValidation, "invalid entity search request")
	}

	page := normalizePagination(req.Pagination)
	raw, err := s.search(ctx, EntitiesIndex(s.prefix), buildEntityQuery(req, page))
	if err != nil {
		return nil, err
	}

	result := &EntitySearchResult{
		Pagination: page,
		TookMs:     raw.TookMs,
		Hits:       make([]EntityHit, 0, len(raw.Hits)),
	}
	result.Pagination.Total = raw.Total

	for _, h := range raw.Hits {
		var doc EntityDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode entity hit")
		}
		result.Hits = append(result.Hits, EntityHit{Score: h.Score, Entity: doc})
	}

	return result, nil
}

// SearchRelations matches the query against subject, object and context.
// With an empty query the predicate filter alone selects triples.
func (s *Searcher) SearchRelations(ctx context.Context, req btypes.RelationSearchRequest) (*RelationSearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeValidation, "invalid relation search request")
	}

	page := normalizePagination(req.Pagination)
	raw, err := s.search(ctx, RelationsIndex(s.prefix), buildRelationQuery(req, page))
	if err != nil {
		return nil, err
	}

	result := &RelationSearchResult{
		Pagination: page,
		TookMs:     raw.TookMs,
		Hits:       make([]RelationHit, 0, len(raw.Hits)),
	}
	result.Pagination.Total = raw.Total

	for _, h := range raw.Hits {
		var doc RelationDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode relation hit")
		}
		result.Hits = append(result.Hits, RelationHit{Score: h.Score, Relation: doc})
	}

	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Query building
// ─────────────────────────────────────────────────────────────────────────────

// normalizePagination fills the zero value with the first default page and
// caps oversized pages.
func normalizePagination(page common.Pagination) common.Pagination {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 {
		page.PageSize = defaultPageSize
	}
	if page.PageSize > maxPageSize {
		page.PageSize = maxPageSize
	}
	return page
}

func buildEntityQuery(req btypes.EntitySearchRequest, page common.Pagination) map[string]interface{} {
	must := []map[string]interface{}{{
		"multi_match": map[string]interface{}{
			"query":  req.Query,
			"fields": []string{"text^2", "context"},
		},
	}}

	var filter []map[string]interface{}
	if len(req.Types) > 0 {
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{"type": req.Types},
		})
	}
	filter = appendCommonFilters(filter, req.DocumentID, req.MinConfidence)

	return pagedQuery(must, filter, page)
}

func buildRelationQuery(req btypes.RelationSearchRequest, page common.Pagination) map[string]interface{} {
	var must []map[string]interface{}
	if req.Query != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  req.Query,
				"fields": []string{"subject^2", "object^2", "context"},
			},
		})
	} else {
		// Predicate-only lookups list every triple with that predicate.
		must = append(must, map[string]interface{}{
			"match_all": map[string]interface{}{},
		})
	}

	var filter []map[string]interface{}
	if req.Predicate != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"predicate": req.Predicate},
		})
	}
	filter = appendCommonFilters(filter, req.DocumentID, req.MinConfidence)

	return pagedQuery(must, filter, page)
}

func appendCommonFilters(filter []map[string]interface{}, documentID common.ID, minConfidence float64) []map[string]interface{} {
	if documentID != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"document_id": string(documentID)},
		})
	}
	if minConfidence > 0 {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{
				"confidence": map[string]interface{}{"gte": minConfidence},
			},
		})
	}
	return filter
}

// pagedQuery assembles the final DSL: relevance first, confidence as the
// tie-break.
func pagedQuery(must, filter []map[string]interface{}, page common.Pagination) map[string]interface{} {
	boolQuery := map[string]interface{}{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"from":  page.Offset(),
		"size":  page.PageSize,
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"confidence": map[string]interface{}{"order": "desc"}},
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Execution
// ─────────────────────────────────────────────────────────────────────────────

type rawHit struct {
	ID     string
	Score  float64
	Source json.RawMessage
}

type rawResult struct {
	Total  int64
	TookMs int64
	Hits   []rawHit
}

func (s *Searcher) search(ctx context.Context, index string, dsl map[string]interface{}) (*rawResult, error) {
	body, err := json.Marshal(dsl)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to encode search query")
	}

	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}

	start := time.Now()
	resp, err := req.Do(ctx, s.client.GetClient())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, appErrors.New(appErrors.ErrCodeTimeout, "search timed out")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrCodeSearchQuery, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, decodeError(resp, appErrors.ErrCodeSearchQuery, "search failed")
	}

	var osResp struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Score  float64         `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&osResp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &rawResult{
		Total:  osResp.Hits.Total.Value,
		TookMs: osResp.Took,
	}
	for _, h := range osResp.Hits.Hits {
		result.Hits = append(result.Hits, rawHit{ID: h.ID, Score: h.Score, Source: h.Source})
	}

	s.logger.Debug("Search executed",
		logging.String("index", index),
		logging.Int64("total", result.Total),
		logging.Duration("elapsed", time.Since(start)))

	return result, nil
}
