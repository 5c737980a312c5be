package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/LegisGraph/internal/application/extraction"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
)

// DocumentHandler serves the document resource.
type DocumentHandler struct {
	ingest extraction.IngestService
}

// NewDocumentHandler builds the handler.
func NewDocumentHandler(ingest extraction.IngestService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest}
}

// Ingest answers POST /documents. Re-uploading unchanged content yields a
// 409 naming the existing document.
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req btypes.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	doc, err := h.ingest.IngestDocument(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// Get answers GET /documents/:documentID with the raw text included.
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	doc, err := h.ingest.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// List answers GET /documents without raw text.
func (h *DocumentHandler) List(c *gin.Context) {
	req := &extraction.ListDocumentsRequest{
		SourceName: c.Query("source_name"),
		Pagination: parsePagination(c),
	}

	list, err := h.ingest.ListDocuments(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Delete answers DELETE /documents/:documentID.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "documentID")
	if !ok {
		return
	}

	if err := h.ingest.DeleteDocument(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
