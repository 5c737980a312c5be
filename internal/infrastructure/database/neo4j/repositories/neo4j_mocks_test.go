package repositories

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/mock"

	driver "github.com/turtacn/LegisGraph/internal/infrastructure/database/neo4j"
)

// mockDriver implements driver.DriverInterface and hands every unit of work
// the shared mock transaction, so tests set expectations on Run calls only.
type mockDriver struct {
	tx      *mockTransaction
	execErr error
}

func newMockDriver() (*mockDriver, *mockTransaction) {
	tx := &mockTransaction{}
	return &mockDriver{tx: tx}, tx
}

func (m *mockDriver) ExecuteRead(_ context.Context, work driver.TransactionWork) (interface{}, error) {
	if m.execErr != nil {
		return nil, m.execErr
	}
	return work(m.tx)
}

func (m *mockDriver) ExecuteWrite(_ context.Context, work driver.TransactionWork) (interface{}, error) {
	if m.execErr != nil {
		return nil, m.execErr
	}
	return work(m.tx)
}

func (m *mockDriver) HealthCheck(_ context.Context) error {
	return m.execErr
}

// mockTransaction records every Run call for later inspection.
type mockTransaction struct {
	mock.Mock
}

func (m *mockTransaction) Run(ctx context.Context, cypher string, params map[string]any) (driver.Result, error) {
	args := m.Called(ctx, cypher, params)
	res, _ := args.Get(0).(driver.Result)
	return res, args.Error(1)
}

// mockResult replays a fixed set of records through the driver's Result
// interface.
type mockResult struct {
	records []*neo4j.Record
	idx     int
	current *neo4j.Record
	err     error
}

func (r *mockResult) Next(_ context.Context) bool {
	if r.err != nil || r.idx >= len(r.records) {
		return false
	}
	r.current = r.records[r.idx]
	r.idx++
	return true
}

func (r *mockResult) Record() *neo4j.Record { return r.current }

func (r *mockResult) Err() error { return r.err }

func (r *mockResult) Consume(_ context.Context) (neo4j.ResultSummary, error) { return nil, nil }

func resultWithRows(keys []string, rows ...[]any) *mockResult {
	records := make([]*neo4j.Record, 0, len(rows))
	for _, values := range rows {
		records = append(records, &neo4j.Record{Keys: keys, Values: values})
	}
	return &mockResult{records: records}
}
