// Package query serves the read side of extraction results: full-text
// entity and relation search against OpenSearch, and knowledge-graph
// lookups with Redis-cached responses.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/turtacn/LegisGraph/internal/domain/bill"
	"github.com/turtacn/LegisGraph/internal/infrastructure/database/redis"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegisGraph/internal/infrastructure/search/opensearch"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
)

const (
	statsCacheKey      = "query:graph:stats"
	relatedCachePrefix = "query:graph:related:"
	graphCacheTTL      = 5 * time.Minute

	// maxRelatedDepth matches the traversal bound the graph store enforces.
	maxRelatedDepth = 5
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Searcher answers full-text lookups over indexed extraction results.
// opensearch.Searcher satisfies it.
type Searcher interface {
	SearchEntities(ctx context.Context, req btypes.EntitySearchRequest) (*opensearch.EntitySearchResult, error)
	SearchRelations(ctx context.Context, req btypes.RelationSearchRequest) (*opensearch.RelationSearchResult, error)
}

// ResultCache keeps graph query responses warm between requests.
// redis.Cache satisfies it.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ---------------------------------------------------------------------------
// Request / Response DTOs
// ---------------------------------------------------------------------------

// RelatedEntitiesRequest asks for the entities reachable from Text within
// Depth hops of the knowledge graph.
type RelatedEntitiesRequest struct {
	Text  string `json:"text"`
	Depth int    `json:"depth,omitempty"`
}

// RelatedEntitiesResult lists the canonical entity texts reachable from the
// normalized lookup text.
type RelatedEntitiesResult struct {
	Text    string   `json:"text"`
	Depth   int      `json:"depth"`
	Related []string `json:"related"`
}

// ---------------------------------------------------------------------------
// Service Interface
// ---------------------------------------------------------------------------

// SearchService answers read-side queries over extraction results.
type SearchService interface {
	// SearchEntities matches entities by text and context, with optional
	// type, document and confidence filters.
	SearchEntities(ctx context.Context, req *btypes.EntitySearchRequest) (*opensearch.EntitySearchResult, error)

	// SearchRelations matches relation triples by subject, object and
	// context, or lists every triple carrying a given predicate.
	SearchRelations(ctx context.Context, req *btypes.RelationSearchRequest) (*opensearch.RelationSearchResult, error)

	// GraphStats reports node and edge totals of the knowledge graph,
	// grouped by label and relation type.
	GraphStats(ctx context.Context) (*btypes.GraphStatsDTO, error)

	// RelatedEntities returns the entity texts reachable from one entity
	// within the requested number of hops.
	RelatedEntities(ctx context.Context, req *RelatedEntitiesRequest) (*RelatedEntitiesResult, error)
}

// SearchServiceDeps carries the collaborators of the search service. Logger
// is required. A nil Search disables the full-text operations and a nil
// Graph disables the graph operations; Cache and Metrics are optional.
type SearchServiceDeps struct {
	Search  Searcher
	Graph   bill.KnowledgeGraphRepository
	Cache   ResultCache
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type searchServiceImpl struct {
	search  Searcher
	graph   bill.KnowledgeGraphRepository
	cache   ResultCache
	logger  logging.Logger
	metrics *prometheus.AppMetrics
}

// NewSearchService builds the search service.
func NewSearchService(deps SearchServiceDeps) (SearchService, error) {
	if deps.Logger == nil {
		return nil, appErrors.InvalidParam("logger must not be nil")
	}
	return &searchServiceImpl{
		search:  deps.Search,
		graph:   deps.Graph,
		cache:   deps.Cache,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}, nil
}

func (s *searchServiceImpl) SearchEntities(ctx context.Context, req *btypes.EntitySearchRequest) (*opensearch.EntitySearchResult, error) {
	if req == nil {
		return nil, appErrors.InvalidParam("search request must not be nil")
	}
	if s.search == nil {
		return nil, appErrors.New(appErrors.ErrCodeServiceUnavailable, "entity search is not configured")
	}

	started := time.Now()
	defer s.observeSearch("entities", started)

	result, err := s.search.SearchEntities(ctx, *req)
	if err != nil {
		if !appErrors.IsCode(err, appErrors.ErrCodeValidation) {
			s.recordError("opensearch", "entity_search")
		}
		return nil, err
	}

	s.logger.Debug("Entity search answered",
		logging.String("query", req.Query),
		logging.Int64("total", result.Pagination.Total))
	return result, nil
}

func (s *searchServiceImpl) SearchRelations(ctx context.Context, req *btypes.RelationSearchRequest) (*opensearch.RelationSearchResult, error) {
	if req == nil {
		return nil, appErrors.InvalidParam("search request must not be nil")
	}
	if s.search == nil {
		return nil, appErrors.New(appErrors.ErrCodeServiceUnavailable, "relation search is not configured")
	}

	started := time.Now()
	defer s.observeSearch("relations", started)

	result, err := s.search.SearchRelations(ctx, *req)
	if err != nil {
		if !appErrors.IsCode(err, appErrors.ErrCodeValidation) {
			s.recordError("opensearch", "relation_search")
		}
		return nil, err
	}

	s.logger.Debug("Relation search answered",
		logging.String("query", req.Query),
		logging.String("predicate", req.Predicate),
		logging.Int64("total", result.Pagination.Total))
	return result, nil
}

func (s *searchServiceImpl) GraphStats(ctx context.Context) (*btypes.GraphStatsDTO, error) {
	if s.graph == nil {
		return nil, appErrors.New(appErrors.ErrCodeServiceUnavailable, "knowledge graph is not configured")
	}

	started := time.Now()
	defer s.observeGraph("stats", started)

	if s.cache != nil {
		var cached btypes.GraphStatsDTO
		switch err := s.cache.Get(ctx, statsCacheKey, &cached); {
		case err == nil:
			s.recordCache(true)
			return &cached, nil
		case !errors.Is(err, redis.ErrCacheMiss):
			s.logger.Warn("Graph stats cache read failed", logging.Err(err))
		}
		s.recordCache(false)
	}

	stats, err := s.graph.Stats(ctx)
	if err != nil {
		s.recordError("neo4j", "graph_stats")
		return nil, err
	}

	dto := stats.ToDTO()
	s.cacheSet(statsCacheKey, dto)
	return &dto, nil
}

func (s *searchServiceImpl) RelatedEntities(ctx context.Context, req *RelatedEntitiesRequest) (*RelatedEntitiesResult, error) {
	if req == nil {
		return nil, appErrors.InvalidParam("related entities request must not be nil")
	}
	if s.graph == nil {
		return nil, appErrors.New(appErrors.ErrCodeServiceUnavailable, "knowledge graph is not configured")
	}

	// Node texts are stored canonicalized, so the lookup text is lowered
	// before matching.
	r := *req
	r.Text = strings.ToLower(strings.TrimSpace(r.Text))
	if r.Text == "" {
		return nil, appErrors.InvalidParam("entity text is required")
	}
	if r.Depth < 1 {
		r.Depth = 1
	}
	if r.Depth > maxRelatedDepth {
		r.Depth = maxRelatedDepth
	}

	started := time.Now()
	defer s.observeGraph("related_entities", started)

	key := relatedCacheKey(r)
	if s.cache != nil {
		var cached RelatedEntitiesResult
		switch err := s.cache.Get(ctx, key, &cached); {
		case err == nil:
			s.recordCache(true)
			return &cached, nil
		case !errors.Is(err, redis.ErrCacheMiss):
			s.logger.Warn("Related entities cache read failed", logging.Err(err))
		}
		s.recordCache(false)
	}

	related, err := s.graph.RelatedEntities(ctx, r.Text, r.Depth)
	if err != nil {
		s.recordError("neo4j", "related_entities")
		return nil, err
	}

	result := &RelatedEntitiesResult{Text: r.Text, Depth: r.Depth, Related: related}
	s.cacheSet(key, result)

	s.logger.Debug("Related entities answered",
		logging.String("text", r.Text),
		logging.Int("depth", r.Depth),
		logging.Int("related", len(related)))
	return result, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// cacheSet stores a response in the background so a slow cache write never
// delays the caller.
func (s *searchServiceImpl) cacheSet(key string, value interface{}) {
	if s.cache == nil {
		return
	}
	go func(ctx context.Context) {
		if err := s.cache.Set(ctx, key, value, graphCacheTTL); err != nil {
			s.logger.Warn("Cache write failed",
				logging.String("key", key),
				logging.Err(err))
		}
	}(context.Background())
}

// relatedCacheKey derives a stable key from the normalized request.
func relatedCacheKey(req RelatedEntitiesRequest) string {
	payload, _ := json.Marshal(req)
	sum := sha256.Sum256(payload)
	return relatedCachePrefix + hex.EncodeToString(sum[:])
}

func (s *searchServiceImpl) observeSearch(index string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueryDuration.WithLabelValues(index).Observe(time.Since(started).Seconds())
}

func (s *searchServiceImpl) observeGraph(queryType string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.GraphQueryDuration.WithLabelValues(queryType).Observe(time.Since(started).Seconds())
}

func (s *searchServiceImpl) recordCache(hit bool) {
	if s.metrics == nil {
		return
	}
	prometheus.RecordCacheAccess(s.metrics, "query", hit)
}

func (s *searchServiceImpl) recordError(component, errorType string) {
	if s.metrics == nil {
		return
	}
	prometheus.RecordError(s.metrics, component, errorType, "error")
}
