// Package handlers implements the gin HTTP handlers of the LegisGraph API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ErrorResponse is the standard error body of the API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError maps an error to its HTTP status via the platform's code
// table. Server-side failures are masked so internals never leak to
// callers; the logging middleware still sees the original error.
func respondError(c *gin.Context, err error) {
	code := appErrors.GetCode(err)
	status := appErrors.HTTPStatusForCode(code)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "internal server error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Code: string(code), Message: message})
}

// respondValidation reports a malformed request body or parameter.
func respondValidation(c *gin.Context, err error) {
	respondError(c, appErrors.Wrap(err, appErrors.ErrCodeBadRequest, "invalid request"))
}

// parsePagination reads page and page_size query parameters, leaving the
// zero value for the service layer's own normalization when absent.
func parsePagination(c *gin.Context) common.Pagination {
	var p common.Pagination
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if v := c.Query("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.PageSize = n
		}
	}
	return p
}

// pathID reads one path parameter as an ID, failing on empty values.
func pathID(c *gin.Context, name string) (common.ID, bool) {
	v := c.Param(name)
	if v == "" {
		respondError(c, appErrors.InvalidParam(name+" is required"))
		return "", false
	}
	return common.ID(v), true
}
