package annotate

import (
	"context"
	"time"
)

// ResponseCache stores raw annotation response bodies keyed by chunk
// content hash. Implementations are expected to be shared across runs;
// a failed cache never fails an annotation, only skips reuse.
type ResponseCache interface {
	// Get returns the cached body for key. The second return reports
	// whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores body under key for ttl. A zero ttl means the
	// implementation's default retention.
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}
