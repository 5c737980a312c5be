package annotate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stdliberrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Annotator obtains linguistic annotations for one chunk. A non-nil error
// always means the chunk produced nothing: callers fall back to pattern
// extraction for that chunk and must never combine a failed annotation
// with fallback output.
type Annotator interface {
	Annotate(ctx context.Context, chunk string) (*ChunkAnnotation, error)
}

// ChunkAnnotation is the chunk-local extraction derived from one response.
// Offsets are byte offsets into the annotated chunk.
type ChunkAnnotation struct {
	Entities  []common.Entity   `json:"entities"`
	Relations []common.Relation `json:"relations"`
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// annotationProperties is the fixed annotator configuration sent with every
// request. The server-side timeout is expressed in milliseconds.
const annotationProperties = `{"annotators":"tokenize,ssplit,pos,lemma,ner,depparse","outputFormat":"json","timeout":"30000"}`

// nerConfidence scores entities backed by the server's NER tags.
const nerConfidence = 0.8

// nerOutside is the server's tag for tokens outside any entity span.
const nerOutside = "O"

// ClientConfig holds configuration for the annotation client.
type ClientConfig struct {
	ServerURL string        `json:"server_url" yaml:"server_url"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// DefaultClientConfig returns a sensible default configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:9000",
		Timeout:   30 * time.Second,
		CacheTTL:  24 * time.Hour,
	}
}

// Validate checks the configuration for consistency.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.Validation("server_url is required")
	}
	if _, err := url.Parse(c.ServerURL); err != nil {
		return errors.Validation("server_url is not a valid URL: " + err.Error())
	}
	if c.Timeout <= 0 {
		return errors.Validation("timeout must be positive")
	}
	if c.CacheTTL < 0 {
		return errors.Validation("cache_ttl must not be negative")
	}
	return nil
}

// ---------------------------------------------------------------------------
// httpAnnotator
// ---------------------------------------------------------------------------

type httpAnnotator struct {
	config  *ClientConfig
	baseURL *url.URL
	client  *http.Client
	cache   ResponseCache
	logger  common.Logger
	metrics common.ExtractionMetrics
}

// NewHTTPAnnotator creates an annotation client against a CoreNLP-compatible
// server. cache may be nil to disable response caching.
func NewHTTPAnnotator(
	config *ClientConfig,
	cache ResponseCache,
	logger common.Logger,
	metrics common.ExtractionMetrics,
) (Annotator, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	if metrics == nil {
		metrics = common.NewNoopExtractionMetrics()
	}
	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, errors.Validation("server_url is not a valid URL: " + err.Error())
	}
	return &httpAnnotator{
		config:  config,
		baseURL: baseURL,
		client:  &http.Client{Timeout: config.Timeout},
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Annotate requests annotation for one chunk and derives its entities and
// relations. The request carries the raw chunk as the body and the fixed
// annotator properties as a query parameter.
func (a *httpAnnotator) Annotate(ctx context.Context, chunk string) (*ChunkAnnotation, error) {
	if chunk == "" {
		return &ChunkAnnotation{Entities: []common.Entity{}, Relations: []common.Relation{}}, nil
	}

	start := time.Now()
	body, fromCache, err := a.fetch(ctx, chunk)
	if err != nil {
		a.recordRequest(ctx, outcomeForError(err), start)
		return nil, err
	}

	resp, err := parseResponse(body, chunk)
	if err != nil {
		a.recordRequest(ctx, common.AnnotationOutcomeMalformed, start)
		return nil, err
	}

	if !fromCache {
		a.recordRequest(ctx, common.AnnotationOutcomeOK, start)
		a.store(ctx, chunk, body)
	}
	return buildAnnotation(resp, chunk), nil
}

// fetch returns the raw response body, from the cache when possible.
func (a *httpAnnotator) fetch(ctx context.Context, chunk string) ([]byte, bool, error) {
	if a.cache != nil {
		cached, hit, err := a.cache.Get(ctx, cacheKey(chunk))
		if err != nil {
			a.logger.Warn("annotation cache read failed", "error", err)
		}
		a.metrics.RecordCacheAccess(ctx, hit, cacheScope)
		if hit && len(cached) > 0 {
			return cached, true, nil
		}
	}

	reqURL := *a.baseURL
	q := reqURL.Query()
	q.Set("properties", annotationProperties)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), strings.NewReader(chunk))
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeAnnotationUnavailable, "failed to build annotation request")
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	httpResp, err := a.client.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			return nil, false, errors.Wrap(err, errors.ErrCodeAnnotationTimeout, "annotation request timed out")
		}
		return nil, false, errors.Wrap(err, errors.ErrCodeAnnotationUnavailable, "annotation request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, false, errors.Newf(errors.ErrCodeAnnotationUnavailable,
			"annotation server returned status %d", httpResp.StatusCode)
	}
	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeAnnotationUnavailable, "failed to read annotation response")
	}
	if len(raw) == 0 {
		return nil, false, errors.New(errors.ErrCodeAnnotationUnavailable, "annotation server returned an empty body")
	}
	return raw, false, nil
}

// store writes a validated response back to the cache.
func (a *httpAnnotator) store(ctx context.Context, chunk string, body []byte) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, cacheKey(chunk), body, a.config.CacheTTL); err != nil {
		a.logger.Warn("annotation cache write failed", "error", err)
	}
}

func (a *httpAnnotator) recordRequest(ctx context.Context, outcome string, start time.Time) {
	a.metrics.RecordAnnotationRequest(ctx, &common.AnnotationMetricParams{
		Outcome:    outcome,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// cacheKey derives the cache key from the chunk content so identical
// chunks across runs and documents share one cached response.
func cacheKey(chunk string) string {
	sum := sha256.Sum256([]byte(chunk))
	return hex.EncodeToString(sum[:])
}

const cacheScope = "annotation"

func isTimeoutError(err error) bool {
	if stdliberrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stdliberrors.As(err, &netErr) && netErr.Timeout()
}

func outcomeForError(err error) string {
	if errors.IsCode(err, errors.ErrCodeAnnotationTimeout) {
		return common.AnnotationOutcomeTimeout
	}
	return common.AnnotationOutcomeUnavailable
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// parseResponse decodes and validates a response body against the chunk it
// was requested for. Any shape violation is a malformed-response error;
// partial acceptance is never attempted.
func parseResponse(body []byte, chunk string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAnnotationMalformed, "annotation response is not valid JSON")
	}
	if resp.Sentences == nil {
		return nil, errors.New(errors.ErrCodeAnnotationMalformed, "annotation response has no sentences field")
	}

	mapper := newOffsetMapper(chunk)
	for si := range resp.Sentences {
		for ti := range resp.Sentences[si].Tokens {
			tok := &resp.Sentences[si].Tokens[ti]
			if tok.Word == "" {
				return nil, errors.Newf(errors.ErrCodeAnnotationMalformed,
					"sentence %d token %d has no word", si, ti)
			}
			if tok.CharacterOffsetBegin == nil || tok.CharacterOffsetEnd == nil {
				return nil, errors.Newf(errors.ErrCodeAnnotationMalformed,
					"sentence %d token %d is missing character offsets", si, ti)
			}
			begin, beginOK := mapper.byteOffset(*tok.CharacterOffsetBegin)
			end, endOK := mapper.byteOffset(*tok.CharacterOffsetEnd)
			if !beginOK || !endOK || begin >= end {
				return nil, errors.Newf(errors.ErrCodeAnnotationMalformed,
					"sentence %d token %d offsets [%d,%d) do not address the chunk",
					si, ti, *tok.CharacterOffsetBegin, *tok.CharacterOffsetEnd)
			}
		}
	}
	return &resp, nil
}

// buildAnnotation converts a validated response into chunk-local entities
// and relations. Tokens tagged with a named-entity type become entities;
// dependency edges feed the relation rules.
func buildAnnotation(resp *Response, chunk string) *ChunkAnnotation {
	mapper := newOffsetMapper(chunk)
	ann := &ChunkAnnotation{
		Entities:  []common.Entity{},
		Relations: []common.Relation{},
	}
	for i := range resp.Sentences {
		sent := &resp.Sentences[i]
		sentText := sentenceText(sent, chunk, mapper)

		for _, tok := range sent.Tokens {
			if tok.NER == "" || tok.NER == nerOutside {
				continue
			}
			begin, _ := mapper.byteOffset(*tok.CharacterOffsetBegin)
			end, _ := mapper.byteOffset(*tok.CharacterOffsetEnd)
			// The token's word may be normalized by the server (-LRB-, smart
			// quotes); the surface span keeps Text consistent with the offsets.
			ann.Entities = append(ann.Entities, common.Entity{
				Text:       chunk[begin:end],
				Type:       tok.NER,
				Start:      begin,
				End:        end,
				Confidence: nerConfidence,
				Context:    sentText,
				Source:     common.SourceAnnotation,
			})
		}

		ann.Relations = append(ann.Relations, deriveSentenceRelations(sent, sentText)...)
	}
	return ann
}

// sentenceText recovers the sentence's surface form from the chunk via the
// first and last token offsets.
func sentenceText(sent *Sentence, chunk string, mapper *offsetMapper) string {
	if len(sent.Tokens) == 0 {
		return ""
	}
	first := sent.Tokens[0]
	last := sent.Tokens[len(sent.Tokens)-1]
	begin, beginOK := mapper.byteOffset(*first.CharacterOffsetBegin)
	end, endOK := mapper.byteOffset(*last.CharacterOffsetEnd)
	if !beginOK || !endOK || begin >= end {
		return ""
	}
	return chunk[begin:end]
}

var _ Annotator = (*httpAnnotator)(nil)
