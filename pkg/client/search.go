package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// SearchClient calls the full-text search and knowledge-graph endpoints.
type SearchClient struct {
	client *Client
}

// EntitySearchOptions parameterizes an entity search.
type EntitySearchOptions struct {
	Query         string
	Types         []string
	MinConfidence float64
	DocumentID    common.ID
	Page          int
	PageSize      int
}

// RelationSearchOptions parameterizes a relation search. Either Query or
// Predicate must be set.
type RelationSearchOptions struct {
	Query         string
	Predicate     string
	MinConfidence float64
	DocumentID    common.ID
	Page          int
	PageSize      int
}

// IndexedEntity is one indexed entity occurrence.
type IndexedEntity struct {
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

// EntityHit is one entity match with its relevance score.
type EntityHit struct {
	Score  float64       `json:"score"`
	Entity IndexedEntity `json:"entity"`
}

// EntitySearchResult is one page of entity matches.
type EntitySearchResult struct {
	Pagination common.Pagination `json:"pagination"`
	TookMs     int64             `json:"took_ms"`
	Hits       []EntityHit       `json:"hits"`
}

// IndexedRelation is one indexed relation triple.
type IndexedRelation struct {
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

// RelationHit is one relation match with its relevance score.
type RelationHit struct {
	Score    float64         `json:"score"`
	Relation IndexedRelation `json:"relation"`
}

// RelationSearchResult is one page of relation matches.
type RelationSearchResult struct {
	Pagination common.Pagination `json:"pagination"`
	TookMs     int64             `json:"took_ms"`
	Hits       []RelationHit     `json:"hits"`
}

// RelatedEntities lists the canonical entity texts reachable from a
// lookup text in the knowledge graph.
type RelatedEntities struct {
	Text    string   `json:"text"`
	Depth   int      `json:"depth"`
	Related []string `json:"related"`
}

// Entities searches indexed entities by text and context.
func (sc *SearchClient) Entities(ctx context.Context, opts EntitySearchOptions) (*EntitySearchResult, error) {
	if opts.Query == "" {
		return nil, fmt.Errorf("client: search query is empty")
	}

	q := url.Values{}
	q.Set("q", opts.Query)
	if len(opts.Types) > 0 {
		q.Set("types", strings.Join(opts.Types, ","))
	}
	if opts.MinConfidence > 0 {
		q.Set("min_confidence", strconv.FormatFloat(opts.MinConfidence, 'f', -1, 64))
	}
	if opts.DocumentID != "" {
		q.Set("document_id", string(opts.DocumentID))
	}
	addPaging(q, opts.Page, opts.PageSize)

	var res EntitySearchResult
	if err := sc.client.get(ctx, "/api/v1/search/entities?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Relations searches indexed relation triples.
func (sc *SearchClient) Relations(ctx context.Context, opts RelationSearchOptions) (*RelationSearchResult, error) {
	if opts.Query == "" && opts.Predicate == "" {
		return nil, fmt.Errorf("client: either query or predicate must be set")
	}

	q := url.Values{}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	if opts.Predicate != "" {
		q.Set("predicate", opts.Predicate)
	}
	if opts.MinConfidence > 0 {
		q.Set("min_confidence", strconv.FormatFloat(opts.MinConfidence, 'f', -1, 64))
	}
	if opts.DocumentID != "" {
		q.Set("document_id", string(opts.DocumentID))
	}
	addPaging(q, opts.Page, opts.PageSize)

	var res RelationSearchResult
	if err := sc.client.get(ctx, "/api/v1/search/relations?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GraphStats fetches node and edge totals of the knowledge graph.
func (sc *SearchClient) GraphStats(ctx context.Context) (*btypes.GraphStatsDTO, error) {
	var stats btypes.GraphStatsDTO
	if err := sc.client.get(ctx, "/api/v1/graph/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Related fetches the entities reachable from a text in the knowledge
// graph. A zero depth leaves the server default in place.
func (sc *SearchClient) Related(ctx context.Context, text string, depth int) (*RelatedEntities, error) {
	if text == "" {
		return nil, fmt.Errorf("client: text is empty")
	}

	q := url.Values{}
	q.Set("text", text)
	if depth > 0 {
		q.Set("depth", strconv.Itoa(depth))
	}

	var res RelatedEntities
	if err := sc.client.get(ctx, "/api/v1/graph/related?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func addPaging(q url.Values, page, pageSize int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
}
