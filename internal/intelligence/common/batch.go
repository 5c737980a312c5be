package common

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutdown is returned by Process after Shutdown has been called.
var ErrShutdown = errors.New("batch processor is shutting down")

// ---------------------------------------------------------------------------
// ItemStatus enum
// ---------------------------------------------------------------------------

type ItemStatus int

const (
	ItemStatusSuccess   ItemStatus = iota // processing completed successfully
	ItemStatusFailed                      // processing failed with an error
	ItemStatusTimeout                     // processing exceeded its timeout
	ItemStatusCancelled                   // processing was cancelled (context or shutdown)
)

func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "success"
	case ItemStatusFailed:
		return "failed"
	case ItemStatusTimeout:
		return "timeout"
	case ItemStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// ProcessFunc processes a single item and returns its result.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult carries the outcome of processing one item. Index is the item's
// position in the input slice, so callers relying on input order can trust
// Results to be ordered even when items complete out of order.
type ItemResult[R any] struct {
	Index      int        `json:"index"`
	Result     R          `json:"result"`
	Error      error      `json:"error,omitempty"`
	DurationMs float64    `json:"duration_ms"`
	Status     ItemStatus `json:"status"`
}

// BatchResult aggregates the outcomes of one Process call.
type BatchResult[R any] struct {
	Results           []*ItemResult[R] `json:"results"`
	TotalCount        int              `json:"total_count"`
	SuccessCount      int              `json:"success_count"`
	FailureCount      int              `json:"failure_count"`
	TotalDurationMs   float64          `json:"total_duration_ms"`
	AvgItemDurationMs float64          `json:"avg_item_duration_ms"`
}

// BatchProcessor runs a ProcessFunc over a slice of items with bounded
// concurrency. Results are always returned in input order regardless of
// completion order.
type BatchProcessor[T, R any] interface {
	Process(ctx context.Context, items []T, fn ProcessFunc[T, R]) (*BatchResult[R], error)
	Shutdown(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type batchConfig struct {
	maxConcurrency int
	itemTimeout    time.Duration
	batchTimeout   time.Duration
	logger         Logger
}

func defaultBatchConfig() *batchConfig {
	return &batchConfig{
		maxConcurrency: 1,
		itemTimeout:    30 * time.Second,
		batchTimeout:   5 * time.Minute,
		logger:         nil,
	}
}

// BatchOption configures a batchProcessor.
type BatchOption func(*batchConfig)

// WithMaxConcurrency sets the maximum number of items processed concurrently.
func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout sets the per-item processing timeout.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.itemTimeout = d
		}
	}
}

// WithBatchTimeout sets the overall batch processing timeout.
func WithBatchTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

// WithBatchLogger injects a logger.
func WithBatchLogger(l Logger) BatchOption {
	return func(c *batchConfig) {
		c.logger = l
	}
}

// ---------------------------------------------------------------------------
// batchProcessor implementation
// ---------------------------------------------------------------------------

type batchProcessor[T, R any] struct {
	cfg    *batchConfig
	logger Logger

	// shutdown coordination
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	isShutdown   atomic.Bool
	activeWg     sync.WaitGroup
}

// NewBatchProcessor creates a new BatchProcessor with the supplied options.
// The default is sequential processing (concurrency 1).
func NewBatchProcessor[T, R any](opts ...BatchOption) BatchProcessor[T, R] {
	cfg := defaultBatchConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = NewNoopLogger()
	}
	return &batchProcessor[T, R]{
		cfg:        cfg,
		logger:     cfg.logger,
		shutdownCh: make(chan struct{}),
	}
}

func (bp *batchProcessor[T, R]) Process(
	ctx context.Context,
	items []T,
	fn ProcessFunc[T, R],
) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.New("process function must not be nil")
	}
	if bp.isShutdown.Load() {
		return nil, ErrShutdown
	}
	n := len(items)
	if n == 0 {
		return &BatchResult[R]{
			Results:    []*ItemResult[R]{},
			TotalCount: 0,
		}, nil
	}

	bp.activeWg.Add(1)
	defer bp.activeWg.Done()

	batchStart := time.Now()

	batchCtx, batchCancel := context.WithTimeout(ctx, bp.cfg.batchTimeout)
	defer batchCancel()

	resultCh := make(chan *ItemResult[R], n)

	// Semaphore via a buffered channel.
	sem := make(chan struct{}, bp.cfg.maxConcurrency)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()

			// Acquire semaphore (or bail on context).
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-batchCtx.Done():
				resultCh <- &ItemResult[R]{
					Index:  idx,
					Error:  batchCtx.Err(),
					Status: classifyCtxError(batchCtx.Err()),
				}
				return
			}

			resultCh <- bp.processOneItem(batchCtx, idx, item, fn)
		}(i, items[i])
	}

	// Close resultCh once all goroutines finish.
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]*ItemResult[R], 0, n)
	for ir := range resultCh {
		results = append(results, ir)
	}

	// Restore input order.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})

	return buildBatchResult(results, time.Since(batchStart)), nil
}

// Shutdown stops accepting new batches and waits for in-flight work to
// finish or the context to expire.
func (bp *batchProcessor[T, R]) Shutdown(ctx context.Context) error {
	bp.shutdownOnce.Do(func() {
		bp.isShutdown.Store(true)
		close(bp.shutdownCh)
	})

	done := make(chan struct{})
	go func() {
		bp.activeWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (bp *batchProcessor[T, R]) processOneItem(
	batchCtx context.Context,
	idx int,
	item T,
	fn ProcessFunc[T, R],
) *ItemResult[R] {
	itemStart := time.Now()

	// Per-item timeout context derived from the batch context.
	itemCtx, itemCancel := context.WithTimeout(batchCtx, bp.cfg.itemTimeout)
	result, err := fn(itemCtx, item)
	itemCancel()

	if err == nil {
		return &ItemResult[R]{
			Index:      idx,
			Result:     result,
			Status:     ItemStatusSuccess,
			DurationMs: msSince(itemStart),
		}
	}

	return &ItemResult[R]{
		Index:      idx,
		Error:      err,
		Status:     classifyError(batchCtx, err),
		DurationMs: msSince(itemStart),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func buildBatchResult[R any](results []*ItemResult[R], totalDuration time.Duration) *BatchResult[R] {
	br := &BatchResult[R]{
		Results:         results,
		TotalCount:      len(results),
		TotalDurationMs: float64(totalDuration.Microseconds()) / 1000.0,
	}
	var sumItemMs float64
	for _, r := range results {
		switch r.Status {
		case ItemStatusSuccess:
			br.SuccessCount++
		default:
			br.FailureCount++
		}
		sumItemMs += r.DurationMs
	}
	if br.TotalCount > 0 {
		br.AvgItemDurationMs = sumItemMs / float64(br.TotalCount)
	}
	return br
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func classifyCtxError(err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	return ItemStatusCancelled
}

func classifyError(batchCtx context.Context, err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ItemStatusCancelled
	}
	// Check if the batch context itself expired.
	if batchCtx.Err() == context.DeadlineExceeded {
		return ItemStatusTimeout
	}
	if batchCtx.Err() == context.Canceled {
		return ItemStatusCancelled
	}
	return ItemStatusFailed
}

// compile-time interface check
var _ BatchProcessor[int, int] = (*batchProcessor[int, int])(nil)
