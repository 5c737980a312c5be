package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeConfiguration      ErrorCode = "COMMON_015"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
)

// Aliases for call-site brevity
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeUnauthorized = ErrCodeUnauthorized
	CodeForbidden    = ErrCodeForbidden
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeRateLimit    = ErrCodeTooManyRequests
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")

	// Domain specific aliases
	CodeDocumentNotFound = ErrCodeDocumentNotFound
	CodeRunNotFound      = ErrCodeRunNotFound
	CodeEmptyDocument    = ErrCodeEmptyDocument
)

// Document Module Error Codes
const (
	ErrCodeDocumentNotFound ErrorCode = "DOC_001"
	ErrCodeDocumentExists   ErrorCode = "DOC_002"
	ErrCodeEmptyDocument    ErrorCode = "DOC_003"
	ErrCodeHTMLConversion   ErrorCode = "DOC_004"
	ErrCodeSegmentation     ErrorCode = "DOC_005"
)

// Annotation Module Error Codes
const (
	ErrCodeAnnotationUnavailable ErrorCode = "ANN_001"
	ErrCodeAnnotationTimeout     ErrorCode = "ANN_002"
	ErrCodeAnnotationMalformed   ErrorCode = "ANN_003"
)

// Extraction Module Error Codes
const (
	ErrCodeRunNotFound       ErrorCode = "EXT_001"
	ErrCodeNoChunksProcessed ErrorCode = "EXT_002"
	ErrCodePatternCatalog    ErrorCode = "EXT_003"
	ErrCodeInvalidMode       ErrorCode = "EXT_004"
	ErrCodeOffsetInvariant   ErrorCode = "EXT_005"
)

// Graph Module Error Codes
const (
	ErrCodeGraphExport ErrorCode = "GRAPH_001"
	ErrCodeGraphQuery  ErrorCode = "GRAPH_002"
)

// Search Module Error Codes
const (
	ErrCodeIndexCreate ErrorCode = "SEARCH_001"
	ErrCodeIndexWrite  ErrorCode = "SEARCH_002"
	ErrCodeSearchQuery ErrorCode = "SEARCH_003"
)

// Storage Module Error Codes
const (
	ErrCodeStorageWrite ErrorCode = "STORE_001"
	ErrCodeStorageRead  ErrorCode = "STORE_002"
	ErrCodeBucketSetup  ErrorCode = "STORE_003"
)

// Messaging Module Error Codes
const (
	ErrCodePublish ErrorCode = "MSG_001"
	ErrCodeConsume ErrorCode = "MSG_002"
)

// ErrorCodeHTTPStatus maps error codes to the HTTP status returned by API
// handlers. Codes absent from the map default to 500 via HTTPStatusForCode.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeConfiguration:      http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	CodeUnknown: http.StatusInternalServerError,

	ErrCodeDocumentNotFound: http.StatusNotFound,
	ErrCodeDocumentExists:   http.StatusConflict,
	ErrCodeEmptyDocument:    http.StatusBadRequest,
	ErrCodeHTMLConversion:   http.StatusUnprocessableEntity,
	ErrCodeSegmentation:     http.StatusUnprocessableEntity,

	ErrCodeAnnotationUnavailable: http.StatusBadGateway,
	ErrCodeAnnotationTimeout:     http.StatusGatewayTimeout,
	ErrCodeAnnotationMalformed:   http.StatusBadGateway,

	ErrCodeRunNotFound:       http.StatusNotFound,
	ErrCodeNoChunksProcessed: http.StatusUnprocessableEntity,
	ErrCodePatternCatalog:    http.StatusInternalServerError,
	ErrCodeInvalidMode:       http.StatusBadRequest,
	ErrCodeOffsetInvariant:   http.StatusInternalServerError,

	ErrCodeGraphExport: http.StatusInternalServerError,
	ErrCodeGraphQuery:  http.StatusInternalServerError,

	ErrCodeIndexCreate: http.StatusInternalServerError,
	ErrCodeIndexWrite:  http.StatusInternalServerError,
	ErrCodeSearchQuery: http.StatusBadRequest,

	ErrCodeStorageWrite: http.StatusInternalServerError,
	ErrCodeStorageRead:  http.StatusInternalServerError,
	ErrCodeBucketSetup:  http.StatusInternalServerError,

	ErrCodePublish: http.StatusInternalServerError,
	ErrCodeConsume: http.StatusInternalServerError,
}

// ErrorCodeMessage provides default user-facing messages for codes, used when
// a handler prefers a generic message over the internal one.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "rate limit exceeded",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "operation timed out",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeConfiguration:      "configuration error",
	ErrCodeNotImplemented:     "not implemented",

	CodeUnknown: "unknown error",

	ErrCodeDocumentNotFound: "document not found",
	ErrCodeDocumentExists:   "document already exists",
	ErrCodeEmptyDocument:    "document text is empty",
	ErrCodeHTMLConversion:   "failed to convert document HTML",
	ErrCodeSegmentation:     "failed to segment document",

	ErrCodeAnnotationUnavailable: "annotation service unavailable",
	ErrCodeAnnotationTimeout:     "annotation request timed out",
	ErrCodeAnnotationMalformed:   "annotation response malformed",

	ErrCodeRunNotFound:       "extraction run not found",
	ErrCodeNoChunksProcessed: "no chunks could be processed",
	ErrCodePatternCatalog:    "pattern catalog invalid",
	ErrCodeInvalidMode:       "invalid extraction mode",
	ErrCodeOffsetInvariant:   "entity span outside document bounds",

	ErrCodeGraphExport: "graph export failed",
	ErrCodeGraphQuery:  "graph query failed",

	ErrCodeIndexCreate: "search index creation failed",
	ErrCodeIndexWrite:  "search indexing failed",
	ErrCodeSearchQuery: "search query failed",

	ErrCodeStorageWrite: "object storage write failed",
	ErrCodeStorageRead:  "object storage read failed",
	ErrCodeBucketSetup:  "bucket setup failed",

	ErrCodePublish: "message publish failed",
	ErrCodeConsume: "message consumption failed",
}

// HTTPStatusForCode returns the HTTP status for a code, defaulting to 500 for
// codes without an explicit mapping.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the generic user-facing message for a code.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether the code maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError
}

// IsServerError reports whether the code maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	return HTTPStatusForCode(code) >= http.StatusInternalServerError
}

// ModuleForCode returns the module prefix of a code ("COMMON", "DOC", ...).
// Codes without a module prefix report "UNKNOWN".
func ModuleForCode(code ErrorCode) string {
	s := code.String()
	if idx := strings.IndexByte(s, '_'); idx > 0 {
		return s[:idx]
	}
	return "UNKNOWN"
}
