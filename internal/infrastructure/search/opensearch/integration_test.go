//go:build integration

// Package opensearch_test provides integration tests for the search index
// layer.  Tests require Docker and are gated behind the "integration" build
// tag.
package opensearch_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/internal/infrastructure/search/opensearch"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

// startOpenSearch launches a single-node OpenSearch 2.11 container with the
// security plugin disabled and returns the matching configuration.
func startOpenSearch(t *testing.T) config.OpenSearchConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "opensearchproject/opensearch:2.11.1",
		ExposedPorts: []string{"9200/tcp"},
		Env: map[string]string{
			"discovery.type":          "single-node",
			"DISABLE_SECURITY_PLUGIN": "true",
			"OPENSEARCH_JAVA_OPTS":    "-Xms512m -Xmx512m",
		},
		WaitingFor: wait.ForHTTP("/").
			WithPort("9200/tcp").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9200")
	require.NoError(t, err)

	return config.OpenSearchConfig{
		Addresses:   []string{fmt.Sprintf("http://%s:%s", host, port.Port())},
		IndexPrefix: "legisgraph",
	}
}

// newSearchStack connects a client against a fresh container and builds an
// indexer and searcher on top of it.  The indexer refreshes on every write so
// documents are searchable as soon as IndexExtraction returns.
func newSearchStack(t *testing.T) (*opensearch.Indexer, *opensearch.Searcher) {
	t.Helper()
	cfg := startOpenSearch(t)

	client, err := opensearch.NewClient(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	indexer := opensearch.NewIndexer(client, cfg, logging.NewNopLogger(),
		opensearch.WithRefreshPolicy("true"))
	searcher := opensearch.NewSearcher(client, cfg, logging.NewNopLogger())

	require.NoError(t, indexer.EnsureIndexes(context.Background()))
	return indexer, searcher
}

func testEntities() []btypes.EntityDTO {
	return []btypes.EntityDTO{
		{Text: "department of education", Type: "AGENCY", StartChar: 0, EndChar: 23, Confidence: 0.95, Source: "corenlp"},
		{Text: "education committee", Type: "COMMITTEE", StartChar: 40, EndChar: 59, Confidence: 0.8, Source: "pattern"},
		{Text: "farm to school program", Type: "PROGRAM", StartChar: 70, EndChar: 92, Confidence: 0.9, Source: "pattern"},
	}
}

func testRelations() []btypes.RelationDTO {
	return []btypes.RelationDTO{
		{Subject: "department of education", Predicate: "manages", Object: "farm to school program", Confidence: 0.9, Source: "pattern"},
		{Subject: "department of education", Predicate: "reports to", Object: "legislature", Confidence: 0.85, Source: "pattern"},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Index management
// ─────────────────────────────────────────────────────────────────────────────

func TestEnsureIndexes_Idempotent(t *testing.T) {
	indexer, _ := newSearchStack(t)
	ctx := context.Background()

	// The stack helper already ran EnsureIndexes once; a second run must not
	// fail on the existing indices.
	require.NoError(t, indexer.EnsureIndexes(ctx))

	for _, index := range []string{"legisgraph-entities", "legisgraph-relations"} {
		exists, err := indexer.IndexExists(ctx, index)
		require.NoError(t, err)
		assert.True(t, exists, index)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Extraction output round trip
// ─────────────────────────────────────────────────────────────────────────────

func TestIndexExtractionAndSearch_RoundTrip(t *testing.T) {
	indexer, searcher := newSearchStack(t)
	ctx := context.Background()

	result, err := indexer.IndexExtraction(ctx, "doc-1", "run-1", testEntities(), testRelations())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Succeeded)
	assert.Zero(t, result.Failed)

	// Free-text lookup hits both entities whose text mentions education.
	entities, err := searcher.SearchEntities(ctx, btypes.EntitySearchRequest{Query: "education"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), entities.Pagination.Total)

	// The type filter narrows the same query down to the agency.
	entities, err = searcher.SearchEntities(ctx, btypes.EntitySearchRequest{
		Query: "education",
		Types: []string{"AGENCY"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), entities.Pagination.Total)
	assert.Equal(t, "department of education", entities.Hits[0].Entity.Text)

	// The confidence floor drops the committee at 0.8.
	entities, err = searcher.SearchEntities(ctx, btypes.EntitySearchRequest{
		Query:         "education",
		MinConfidence: 0.9,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), entities.Pagination.Total)
	assert.Equal(t, "department of education", entities.Hits[0].Entity.Text)

	// Predicate-only relation lookup selects the exact triple.
	relations, err := searcher.SearchRelations(ctx, btypes.RelationSearchRequest{Predicate: "manages"})
	require.NoError(t, err)
	require.Equal(t, int64(1), relations.Pagination.Total)
	assert.Equal(t, "farm to school program", relations.Hits[0].Relation.Object)

	// Free-text relation lookup reaches triples through their objects.
	relations, err = searcher.SearchRelations(ctx, btypes.RelationSearchRequest{Query: "legislature"})
	require.NoError(t, err)
	require.Equal(t, int64(1), relations.Pagination.Total)
	assert.Equal(t, "reports to", relations.Hits[0].Relation.Predicate)
}

func TestIndexExtraction_ReindexReplaces(t *testing.T) {
	indexer, searcher := newSearchStack(t)
	ctx := context.Background()

	_, err := indexer.IndexExtraction(ctx, "doc-2", "run-1", testEntities(), testRelations())
	require.NoError(t, err)

	// A later run for the same document carries fewer items; the earlier rows
	// must disappear rather than accumulate.
	second := []btypes.EntityDTO{
		{Text: "department of education", Type: "AGENCY", Confidence: 0.97, Source: "corenlp"},
	}
	result, err := indexer.IndexExtraction(ctx, "doc-2", "run-2", second, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	entities, err := searcher.SearchEntities(ctx, btypes.EntitySearchRequest{
		Query:      "education",
		DocumentID: common.ID("doc-2"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), entities.Pagination.Total)
	assert.Equal(t, "run-2", string(entities.Hits[0].Entity.RunID))

	relations, err := searcher.SearchRelations(ctx, btypes.RelationSearchRequest{
		Predicate:  "manages",
		DocumentID: common.ID("doc-2"),
	})
	require.NoError(t, err)
	assert.Zero(t, relations.Pagination.Total)
}
