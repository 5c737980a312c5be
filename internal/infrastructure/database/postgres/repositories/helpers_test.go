//go:build integration

// Package repositories_test provides integration tests for the PostgreSQL
// repository implementations.  Tests require Docker and are gated behind the
// "integration" build tag.
package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/LegisGraph/internal/domain/bill"
	"github.com/turtacn/LegisGraph/internal/infrastructure/database/postgres"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// testMigrationsPath points at the repository's migrations directory,
// relative to this package (go test runs with the package dir as cwd).
const testMigrationsPath = "file://../../../../../migrations"

// noopLogger satisfies repositories.Logger without producing output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// startPostgres launches a PostgreSQL 16 container, applies the full
// migration set, and returns a connected pool.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "legisgraph_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/legisgraph_test?sslmode=disable", host, port.Port())
	require.NoError(t, postgres.RunMigrations(dsn, testMigrationsPath))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

// newTestDocument builds a valid Document aggregate with text unique to the
// suffix, so content hashes never collide across fixtures.
func newTestDocument(t *testing.T, suffix string) *bill.Document {
	t.Helper()
	d, err := bill.NewDocument(
		"HB-"+suffix,
		btypes.FormatText,
		"SECTION 1. The department of education shall oversee the farm to school program ("+suffix+").",
	)
	require.NoError(t, err)
	return d
}

// newTestRun builds a pending extraction run for the given document.
func newTestRun(t *testing.T, documentID common.ID) *bill.ExtractionRun {
	t.Helper()
	run, err := bill.NewExtractionRun(documentID, btypes.ModePatternOnly)
	require.NoError(t, err)
	return run
}
