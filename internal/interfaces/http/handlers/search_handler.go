package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegisGraph/internal/application/query"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// SearchHandler serves full-text search and knowledge-graph queries.
type SearchHandler struct {
	search query.SearchService
}

// NewSearchHandler builds the handler.
func NewSearchHandler(search query.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Entities answers GET /search/entities.
func (h *SearchHandler) Entities(c *gin.Context) {
	req := btypes.EntitySearchRequest{
		Query:      c.Query("q"),
		DocumentID: common.ID(c.Query("document_id")),
		Pagination: parsePagination(c),
	}
	if v := c.Query("types"); v != "" {
		req.Types = strings.Split(v, ",")
	}
	minConf, ok := parseConfidence(c)
	if !ok {
		return
	}
	req.MinConfidence = minConf

	res, err := h.search.SearchEntities(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Relations answers GET /search/relations.
func (h *SearchHandler) Relations(c *gin.Context) {
	req := btypes.RelationSearchRequest{
		Query:      c.Query("q"),
		Predicate:  c.Query("predicate"),
		DocumentID: common.ID(c.Query("document_id")),
		Pagination: parsePagination(c),
	}
	minConf, ok := parseConfidence(c)
	if !ok {
		return
	}
	req.MinConfidence = minConf

	res, err := h.search.SearchRelations(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GraphStats answers GET /graph/stats.
func (h *SearchHandler) GraphStats(c *gin.Context) {
	stats, err := h.search.GraphStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Related answers GET /graph/related.
func (h *SearchHandler) Related(c *gin.Context) {
	req := &query.RelatedEntitiesRequest{Text: c.Query("text")}
	if v := c.Query("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			respondError(c, appErrors.InvalidParam("depth must be an integer"))
			return
		}
		req.Depth = d
	}

	res, err := h.search.RelatedEntities(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// parseConfidence reads min_confidence, rejecting unparseable values.
func parseConfidence(c *gin.Context) (float64, bool) {
	v := c.Query("min_confidence")
	if v == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		respondError(c, appErrors.InvalidParam("min_confidence must be a number"))
		return 0, false
	}
	return f, true
}
