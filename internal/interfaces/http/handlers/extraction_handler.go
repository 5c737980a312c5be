package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegisGraph/internal/application/extraction"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// defaultShareExpiry bounds presigned links when the caller names none.
const defaultShareExpiry = 24 * time.Hour

// ExtractionHandler serves extraction runs and their results.
type ExtractionHandler struct {
	runs extraction.RunService
}

// NewExtractionHandler builds the handler.
func NewExtractionHandler(runs extraction.RunService) *ExtractionHandler {
	return &ExtractionHandler{runs: runs}
}

// Start answers POST /extractions. Synchronous requests return the
// finished run; async ones return 202 with the pending run.
func (h *ExtractionHandler) Start(c *gin.Context) {
	var req btypes.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	run, err := h.runs.StartExtraction(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if req.Async {
		status = http.StatusAccepted
	}
	c.JSON(status, run)
}

// Get answers GET /extractions/:runID.
func (h *ExtractionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "runID")
	if !ok {
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// List answers GET /extractions, optionally narrowed by document_id and
// status.
func (h *ExtractionHandler) List(c *gin.Context) {
	req := &extraction.ListRunsRequest{
		Pagination: parsePagination(c),
	}
	if v := c.Query("document_id"); v != "" {
		req.DocumentID = common.ID(v)
	}
	if v := c.Query("status"); v != "" {
		status := btypes.RunStatus(v)
		if !status.IsValid() {
			respondError(c, appErrors.InvalidParam("status must be one of pending, running, succeeded, failed"))
			return
		}
		req.Status = status
	}

	list, err := h.runs.ListRuns(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Results answers GET /extractions/:runID/results with the stored
// entities and relations.
func (h *ExtractionHandler) Results(c *gin.Context) {
	id, ok := pathID(c, "runID")
	if !ok {
		return
	}

	res, err := h.runs.GetRunResults(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Export answers POST /extractions/:runID/export, writing the run into
// the knowledge graph and object storage.
func (h *ExtractionHandler) Export(c *gin.Context) {
	id, ok := pathID(c, "runID")
	if !ok {
		return
	}

	result, err := h.runs.ExportRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// shareResponse carries one presigned download link.
type shareResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Artifact answers GET /extractions/:runID/artifacts/:name with a
// presigned link to one export artifact.
func (h *ExtractionHandler) Artifact(c *gin.Context) {
	id, ok := pathID(c, "runID")
	if !ok {
		return
	}
	name := c.Param("name")

	expiry := shareExpiry(c)
	url, err := h.runs.PresignArtifact(c.Request.Context(), id, name, expiry)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shareResponse{URL: url, ExpiresAt: time.Now().Add(expiry)})
}

// Share answers POST /extractions/:runID/share with a presigned link to a
// self-expiring result bundle.
func (h *ExtractionHandler) Share(c *gin.Context) {
	id, ok := pathID(c, "runID")
	if !ok {
		return
	}

	expiry := shareExpiry(c)
	url, err := h.runs.ShareResults(c.Request.Context(), id, expiry)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shareResponse{URL: url, ExpiresAt: time.Now().Add(expiry)})
}

// StatusCounts answers GET /extractions/status with runs per status.
func (h *ExtractionHandler) StatusCounts(c *gin.Context) {
	counts, err := h.runs.RunStatusCounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// shareExpiry reads the expiry query parameter, bounded to [1m, 7d].
func shareExpiry(c *gin.Context) time.Duration {
	v := c.Query("expiry")
	if v == "" {
		return defaultShareExpiry
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < time.Minute {
		return defaultShareExpiry
	}
	if d > 7*24*time.Hour {
		return 7 * 24 * time.Hour
	}
	return d
}
