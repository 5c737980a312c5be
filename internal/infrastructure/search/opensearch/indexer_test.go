package opensearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
)

func newTestIndexer(t *testing.T, serverURL string, opts ...IndexerOption) *Indexer {
	t.Helper()

	cfg := config.OpenSearchConfig{IndexPrefix: "legisgraph"}
	return NewIndexer(newTestBackend(t, serverURL), cfg, logging.NewNopLogger(), opts...)
}

func TestIndexNames(t *testing.T) {
	assert.Equal(t, "legisgraph-entities", EntitiesIndex("legisgraph"))
	assert.Equal(t, "legisgraph-relations", RelationsIndex("legisgraph"))
}

func TestNewIndexer_Defaults(t *testing.T) {
	idx := NewIndexer(nil, config.OpenSearchConfig{}, logging.NewNopLogger())

	assert.Equal(t, "legisgraph", idx.prefix)
	assert.Equal(t, 500, idx.batchSize)
	assert.Equal(t, "false", idx.refresh)
}

func TestNewIndexer_OptionsApplied(t *testing.T) {
	cfg := config.OpenSearchConfig{IndexPrefix: "bills", BulkBatchSize: 50}
	idx := NewIndexer(nil, cfg, logging.NewNopLogger(), WithRefreshPolicy("wait_for"))

	assert.Equal(t, "bills", idx.prefix)
	assert.Equal(t, 50, idx.batchSize)
	assert.Equal(t, "wait_for", idx.refresh)
}

func TestEntityIndexMapping_Fields(t *testing.T) {
	mapping := EntityIndexMapping()

	props, ok := mapping.Mappings["properties"].(map[string]interface{})
	require.True(t, ok)

	for _, field := range []string{"document_id", "run_id", "text", "type", "confidence", "context", "source", "indexed_at"} {
		assert.Contains(t, props, field)
	}

	text, ok := props["text"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "english", text["analyzer"])
	assert.Contains(t, text["fields"].(map[string]interface{}), "raw")

	assert.Equal(t, map[string]interface{}{"type": "keyword"}, props["type"])
}

func TestRelationIndexMapping_Fields(t *testing.T) {
	mapping := RelationIndexMapping()

	props, ok := mapping.Mappings["properties"].(map[string]interface{})
	require.True(t, ok)

	for _, field := range []string{"document_id", "run_id", "subject", "predicate", "object", "relation_type", "confidence", "context", "source"} {
		assert.Contains(t, props, field)
	}

	// Predicate filters are exact matches.
	assert.Equal(t, map[string]interface{}{"type": "keyword"}, props["predicate"])

	subject, ok := props["subject"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "english", subject["analyzer"])
}

func TestEnsureIndexes_CreatesBoth(t *testing.T) {
	var mu sync.Mutex
	var created []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			mu.Lock()
			created = append(created, strings.TrimPrefix(r.URL.Path, "/"))
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"acknowledged":true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	err := indexer.EnsureIndexes(context.Background())

	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"legisgraph-entities", "legisgraph-relations"}, created)
}

func TestCreateIndex_SkipsExisting(t *testing.T) {
	var puts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			puts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	err := indexer.CreateIndex(context.Background(), "legisgraph-entities", EntityIndexMapping())

	require.NoError(t, err)
	assert.Equal(t, int32(0), puts.Load())
}

func TestCreateIndex_LostCreationRaceIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"resource_already_exists_exception","reason":"index [legisgraph-entities/abc] already exists"}}`))
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	err := indexer.CreateIndex(context.Background(), "legisgraph-entities", EntityIndexMapping())

	assert.NoError(t, err)
}

func TestCreateIndex_FailureWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"mapper_parsing_exception","reason":"disk full"}}`))
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	err := indexer.CreateIndex(context.Background(), "legisgraph-entities", EntityIndexMapping())

	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeIndexCreate))
	assert.Contains(t, err.Error(), "disk full")
}

func TestDeleteIndex_MissingIsSuccess(t *testing.T) {
	server := newStatusServer(http.StatusNotFound)
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	err := indexer.DeleteIndex(context.Background(), "legisgraph-entities")

	assert.NoError(t, err)
}

func TestBulkIndex_Success(t *testing.T) {
	var mu sync.Mutex
	var payload string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "_bulk") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		payload = string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"errors":false,"items":[{"index":{"_id":"doc-1:0","status":201}},{"index":{"_id":"doc-1:1","status":201}}]}`))
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	docs := []BulkDoc{
		{ID: "doc-1:0", Doc: map[string]string{"text": "department of education"}},
		{ID: "doc-1:1", Doc: map[string]string{"text": "farm to school program"}},
	}
	result, err := indexer.BulkIndex(context.Background(), "legisgraph-entities", docs)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	mu.Lock()
	defer mu.Unlock()
	lines := strings.Split(strings.TrimSpace(payload), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_index":"legisgraph-entities"`)
	assert.Contains(t, lines[0], `"_id":"doc-1:0"`)
	assert.Contains(t, lines[1], "department of education")
}

func TestBulkIndex_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"errors": true,
			"items": [
				{"index": {"_id": "1", "status": 201}},
				{"index": {"_id": "2", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad field"}}}
			]
		}`))
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	docs := []BulkDoc{
		{ID: "1", Doc: map[string]string{"k": "v"}},
		{ID: "2", Doc: map[string]string{"k": "v"}},
	}
	result, err := indexer.BulkIndex(context.Background(), "legisgraph-entities", docs)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "2", result.Errors[0].DocID)
	assert.Equal(t, "mapper_parsing_exception", result.Errors[0].ErrorType)
}

func TestBulkIndex_BatchesBySize(t *testing.T) {
	var batches atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		batches.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"errors":false,"items":[{"index":{"_id":"x","status":201}}]}`))
	}))
	defer server.Close()

	cfg := config.OpenSearchConfig{IndexPrefix: "legisgraph", BulkBatchSize: 1}
	indexer := NewIndexer(newTestBackend(t, server.URL), cfg, logging.NewNopLogger())

	docs := []BulkDoc{
		{ID: "1", Doc: map[string]string{"k": "v"}},
		{ID: "2", Doc: map[string]string{"k": "v"}},
		{ID: "3", Doc: map[string]string{"k": "v"}},
	}
	result, err := indexer.BulkIndex(context.Background(), "legisgraph-entities", docs)

	require.NoError(t, err)
	assert.Equal(t, int32(3), batches.Load())
	assert.Equal(t, 3, result.Succeeded)
}

func TestBulkIndex_TransportErrorAborts(t *testing.T) {
	server := newStatusServer(http.StatusOK)
	serverURL := server.URL
	server.Close()

	indexer := newTestIndexer(t, serverURL)
	docs := []BulkDoc{{ID: "1", Doc: map[string]string{"k": "v"}}}
	result, err := indexer.BulkIndex(context.Background(), "legisgraph-entities", docs)

	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeIndexWrite))
	assert.Equal(t, 0, result.Succeeded)
}

func TestEncodeBulk_ReportsUnserializable(t *testing.T) {
	docs := []BulkDoc{
		{ID: "good", Doc: map[string]string{"k": "v"}},
		{ID: "bad", Doc: func() {}},
	}

	payload, errs := encodeBulk("legisgraph-entities", docs)

	require.Len(t, errs, 1)
	assert.Equal(t, "bad", errs[0].DocID)
	assert.Equal(t, "serialization_error", errs[0].ErrorType)

	lines := strings.Split(strings.TrimSpace(payload.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"_id":"good"`)
}

func TestDeleteByDocument(t *testing.T) {
	var mu sync.Mutex
	var path, payload string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		payload = string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"deleted":3}`))
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	deleted, err := indexer.DeleteByDocument(context.Background(), "legisgraph-entities", "doc-1")

	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/legisgraph-entities/_delete_by_query", path)
	assert.Contains(t, payload, `"document_id":"doc-1"`)
}

func TestDeleteByDocument_RefreshForwarded(t *testing.T) {
	var mu sync.Mutex
	var refresh string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		refresh = r.URL.Query().Get("refresh")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"deleted":0}`))
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL, WithRefreshPolicy("true"))
	_, err := indexer.DeleteByDocument(context.Background(), "legisgraph-entities", "doc-1")

	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "true", refresh)
}

func TestIndexExtraction_ReplacesThenWrites(t *testing.T) {
	var mu sync.Mutex
	var trace []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		switch {
		case strings.Contains(r.URL.Path, "_delete_by_query"):
			index := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/_delete_by_query")
			mu.Lock()
			trace = append(trace, "delete "+index)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"deleted":1}`))
		case strings.Contains(r.URL.Path, "_bulk"):
			lines := strings.Split(strings.TrimSpace(string(body)), "\n")
			index := "legisgraph-entities"
			if strings.Contains(lines[0], "-relations") {
				index = "legisgraph-relations"
			}
			mu.Lock()
			trace = append(trace, "bulk "+index)
			mu.Unlock()

			items := make([]string, len(lines)/2)
			for n := range items {
				items[n] = `{"index":{"_id":"x","status":201}}`
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"errors":false,"items":[%s]}`, strings.Join(items, ","))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	indexer := newTestIndexer(t, server.URL)
	entities := []btypes.EntityDTO{
		{Text: "department of education", Type: "AGENCY", Confidence: 0.95, Source: "corenlp"},
		{Text: "farm to school program", Type: "PROGRAM", Confidence: 0.9, Source: "pattern"},
	}
	relations := []btypes.RelationDTO{
		{Subject: "department of education", Predicate: "manages", Object: "farm to school program", Confidence: 0.9, Source: "pattern"},
	}

	result, err := indexer.IndexExtraction(context.Background(), "doc-1", "run-1", entities, relations)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"delete legisgraph-entities",
		"bulk legisgraph-entities",
		"delete legisgraph-relations",
		"bulk legisgraph-relations",
	}, trace)
}

func TestEntityDocs_CarriesRunAndTimestamp(t *testing.T) {
	indexedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entities := []btypes.EntityDTO{
		{Text: "legislature", Type: "GOVERNMENT_BODY", StartChar: 10, EndChar: 21, Confidence: 0.8, Source: "pattern"},
	}

	docs := entityDocs("doc-1", "run-1", entities, indexedAt)

	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1:0", docs[0].ID)

	doc, ok := docs[0].Doc.(EntityDocument)
	require.True(t, ok)
	assert.Equal(t, "legislature", doc.Text)
	assert.Equal(t, "run-1", string(doc.RunID))
	assert.Equal(t, indexedAt, doc.IndexedAt)
}
