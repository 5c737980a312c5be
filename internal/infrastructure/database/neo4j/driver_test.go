package neo4j

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeResult struct {
	records []*neo4j.Record
	idx     int
	current *neo4j.Record
	err     error
}

func (r *fakeResult) Next(_ context.Context) bool {
	if r.err != nil || r.idx >= len(r.records) {
		return false
	}
	r.current = r.records[r.idx]
	r.idx++
	return true
}

func (r *fakeResult) Record() *neo4j.Record { return r.current }

func (r *fakeResult) Err() error { return r.err }

func (r *fakeResult) Consume(_ context.Context) (neo4j.ResultSummary, error) { return nil, nil }

type fakeTransaction struct {
	runFn func(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

func (t *fakeTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return t.runFn(ctx, cypher, params)
}

type fakeSession struct {
	tx      Transaction
	execErr error
	closed  int
}

func (s *fakeSession) ExecuteRead(_ context.Context, work func(Transaction) (any, error)) (any, error) {
	if s.execErr != nil {
		return nil, s.execErr
	}
	return work(s.tx)
}

func (s *fakeSession) ExecuteWrite(_ context.Context, work func(Transaction) (any, error)) (any, error) {
	if s.execErr != nil {
		return nil, s.execErr
	}
	return work(s.tx)
}

func (s *fakeSession) Close(_ context.Context) error {
	s.closed++
	return nil
}

type fakeInternalDriver struct {
	verifyErr  error
	session    *fakeSession
	configs    []neo4j.SessionConfig
	closeCalls int
	closeErr   error
}

func (d *fakeInternalDriver) VerifyConnectivity(_ context.Context) error { return d.verifyErr }

func (d *fakeInternalDriver) NewSession(_ context.Context, cfg neo4j.SessionConfig) internalSession {
	d.configs = append(d.configs, cfg)
	return d.session
}

func (d *fakeInternalDriver) Close(_ context.Context) error {
	d.closeCalls++
	return d.closeErr
}

func newTestDriver(fd *fakeInternalDriver, cfg config.Neo4jConfig) *Driver {
	return &Driver{
		driver: fd,
		cfg:    cfg,
		logger: logging.NewNopLogger(),
	}
}

func record(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

// ─────────────────────────────────────────────────────────────────────────────
// Construction
// ─────────────────────────────────────────────────────────────────────────────

func TestNewDriver_InvalidURI(t *testing.T) {
	cfg := config.Neo4jConfig{URI: "://not-a-uri", User: "neo4j", Password: "secret"}

	d, err := NewDriver(cfg, logging.NewNopLogger())

	require.Error(t, err)
	assert.Nil(t, d)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeDatabaseError))
	assert.Contains(t, err.Error(), "failed to create neo4j driver")
}

func TestNewDriver_UnreachableServer(t *testing.T) {
	cfg := config.Neo4jConfig{
		URI:               "bolt://localhost:1",
		User:              "neo4j",
		Password:          "secret",
		ConnectionTimeout: 2 * time.Second,
	}

	d, err := NewDriver(cfg, logging.NewNopLogger())

	require.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "failed to connect to neo4j")
}

// ─────────────────────────────────────────────────────────────────────────────
// Sessions and transactions
// ─────────────────────────────────────────────────────────────────────────────

func TestDriver_Session_DefaultsDatabaseName(t *testing.T) {
	fd := &fakeInternalDriver{session: &fakeSession{}}
	d := newTestDriver(fd, config.Neo4jConfig{})

	d.ReadSession(context.Background())
	d.WriteSession(context.Background())

	require.Len(t, fd.configs, 2)
	assert.Equal(t, "neo4j", fd.configs[0].DatabaseName)
	assert.Equal(t, neo4j.AccessModeRead, fd.configs[0].AccessMode)
	assert.Equal(t, "neo4j", fd.configs[1].DatabaseName)
	assert.Equal(t, neo4j.AccessModeWrite, fd.configs[1].AccessMode)
}

func TestDriver_Session_UsesConfiguredDatabase(t *testing.T) {
	fd := &fakeInternalDriver{session: &fakeSession{}}
	d := newTestDriver(fd, config.Neo4jConfig{Database: "legislation"})

	d.ReadSession(context.Background())

	require.Len(t, fd.configs, 1)
	assert.Equal(t, "legislation", fd.configs[0].DatabaseName)
}

func TestDriver_ExecuteWrite_ReturnsWorkResult(t *testing.T) {
	session := &fakeSession{tx: &fakeTransaction{}}
	d := newTestDriver(&fakeInternalDriver{session: session}, config.Neo4jConfig{})

	result, err := d.ExecuteWrite(context.Background(), func(Transaction) (interface{}, error) {
		return "written", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "written", result)
	assert.Equal(t, 1, session.closed)
}

func TestDriver_ExecuteRead_WrapsSessionError(t *testing.T) {
	session := &fakeSession{execErr: errors.New("connection reset")}
	d := newTestDriver(&fakeInternalDriver{session: session}, config.Neo4jConfig{})

	result, err := d.ExecuteRead(context.Background(), func(Transaction) (interface{}, error) {
		return nil, nil
	})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeDatabaseError))
	assert.Contains(t, err.Error(), "neo4j read failed")
	assert.Equal(t, 1, session.closed)
}

func TestDriver_ExecuteWrite_WrapsWorkError(t *testing.T) {
	session := &fakeSession{tx: &fakeTransaction{}}
	d := newTestDriver(&fakeInternalDriver{session: session}, config.Neo4jConfig{})

	_, err := d.ExecuteWrite(context.Background(), func(Transaction) (interface{}, error) {
		return nil, errors.New("constraint violated")
	})

	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeDatabaseError))
	assert.Contains(t, err.Error(), "neo4j write failed")
}

// ─────────────────────────────────────────────────────────────────────────────
// Health and shutdown
// ─────────────────────────────────────────────────────────────────────────────

func TestDriver_HealthCheck_Healthy(t *testing.T) {
	tx := &fakeTransaction{
		runFn: func(_ context.Context, cypher string, _ map[string]any) (Result, error) {
			assert.Equal(t, "RETURN 1 AS health", cypher)
			return &fakeResult{records: []*neo4j.Record{
				record([]string{"health"}, []any{int64(1)}),
			}}, nil
		},
	}
	fd := &fakeInternalDriver{session: &fakeSession{tx: tx}}
	d := newTestDriver(fd, config.Neo4jConfig{})

	assert.NoError(t, d.HealthCheck(context.Background()))
}

func TestDriver_HealthCheck_ConnectivityFailure(t *testing.T) {
	fd := &fakeInternalDriver{verifyErr: errors.New("no route to host")}
	d := newTestDriver(fd, config.Neo4jConfig{})

	err := d.HealthCheck(context.Background())

	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeDatabaseError))
	assert.Contains(t, err.Error(), "connectivity check failed")
}

func TestDriver_Close_OnlyClosesOnce(t *testing.T) {
	fd := &fakeInternalDriver{session: &fakeSession{}}
	d := newTestDriver(fd, config.Neo4jConfig{})

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	assert.Equal(t, 1, fd.closeCalls)
}

// ─────────────────────────────────────────────────────────────────────────────
// Record helpers
// ─────────────────────────────────────────────────────────────────────────────

func mapFirstString(rec *neo4j.Record) (string, error) {
	s, ok := rec.Values[0].(string)
	if !ok {
		return "", errors.New("not a string")
	}
	return s, nil
}

func TestExtractSingleRecord_ReturnsFirst(t *testing.T) {
	res := &fakeResult{records: []*neo4j.Record{
		record([]string{"text"}, []any{"department of education"}),
		record([]string{"text"}, []any{"legislature"}),
	}}

	got, err := ExtractSingleRecord(context.Background(), res, mapFirstString)

	require.NoError(t, err)
	assert.Equal(t, "department of education", got)
}

func TestExtractSingleRecord_EmptyResult(t *testing.T) {
	_, err := ExtractSingleRecord(context.Background(), &fakeResult{}, mapFirstString)

	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeNotFound))
}

func TestExtractSingleRecord_ResultError(t *testing.T) {
	streamErr := errors.New("stream interrupted")

	_, err := ExtractSingleRecord(context.Background(), &fakeResult{err: streamErr}, mapFirstString)

	assert.ErrorIs(t, err, streamErr)
}

func TestCollectRecords_MapsAll(t *testing.T) {
	res := &fakeResult{records: []*neo4j.Record{
		record([]string{"text"}, []any{"alpha"}),
		record([]string{"text"}, []any{"beta"}),
	}}

	items, err := CollectRecords(context.Background(), res, mapFirstString)

	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, items)
}

func TestCollectRecords_MapperErrorStopsCollection(t *testing.T) {
	res := &fakeResult{records: []*neo4j.Record{
		record([]string{"text"}, []any{int64(42)}),
	}}

	items, err := CollectRecords(context.Background(), res, mapFirstString)

	require.Error(t, err)
	assert.Nil(t, items)
}

func TestCollectRecords_ResultError(t *testing.T) {
	streamErr := errors.New("stream interrupted")

	items, err := CollectRecords(context.Background(), &fakeResult{err: streamErr}, mapFirstString)

	assert.ErrorIs(t, err, streamErr)
	assert.Nil(t, items)
}
