// Package extraction provides the application-level services for document
// ingestion and extraction runs. This package serves as the interface
// between the transport layers (HTTP handlers, the CLI, the Kafka worker)
// and the domain aggregates and intelligence pipeline beneath them.
package extraction

import (
	"context"
	"fmt"

	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegisGraph/internal/infrastructure/search/opensearch"
	icommon "github.com/turtacn/LegisGraph/internal/intelligence/common"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ---------------------------------------------------------------------------
// Pagination defaults
// ---------------------------------------------------------------------------

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// normalizePage fills in defaults for unset pagination and caps the page
// size, mirroring how the search layer treats its own requests.
func normalizePage(p common.Pagination) common.Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

// ---------------------------------------------------------------------------
// Shared ports
// ---------------------------------------------------------------------------

// SearchIndex is the slice of the search layer the services write to.
// *opensearch.Indexer satisfies it.
type SearchIndex interface {
	IndexExtraction(ctx context.Context, documentID, runID common.ID, entities []btypes.EntityDTO, relations []btypes.RelationDTO) (*opensearch.BulkResult, error)
	RemoveDocument(ctx context.Context, documentID common.ID) (int64, error)
}

// ---------------------------------------------------------------------------
// Logging adapter
// ---------------------------------------------------------------------------

// kvLogger adapts the platform's field-based logger to the key-value
// logging interface the intelligence packages expect.
type kvLogger struct {
	base logging.Logger
}

func newKVLogger(base logging.Logger) icommon.Logger {
	return &kvLogger{base: base}
}

func (l *kvLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.base.Debug(msg, kvFields(keysAndValues)...)
}

func (l *kvLogger) Info(msg string, keysAndValues ...interface{}) {
	l.base.Info(msg, kvFields(keysAndValues)...)
}

func (l *kvLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.base.Warn(msg, kvFields(keysAndValues)...)
}

func (l *kvLogger) Error(msg string, keysAndValues ...interface{}) {
	l.base.Error(msg, kvFields(keysAndValues)...)
}

// kvFields pairs up alternating keys and values. A trailing key without a
// value is kept with a nil value rather than dropped.
func kvFields(kvs []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, (len(kvs)+1)/2)
	for i := 0; i < len(kvs); i += 2 {
		var val interface{}
		if i+1 < len(kvs) {
			val = kvs[i+1]
		}
		fields = append(fields, logging.Any(fmt.Sprint(kvs[i]), val))
	}
	return fields
}

// ---------------------------------------------------------------------------
// Metrics helpers
// ---------------------------------------------------------------------------

// recordError counts one component failure. A nil metrics handle disables
// recording, so callers never have to guard.
func recordError(metrics *prometheus.AppMetrics, component, errorType string) {
	if metrics == nil {
		return
	}
	prometheus.RecordError(metrics, component, errorType, "error")
}
