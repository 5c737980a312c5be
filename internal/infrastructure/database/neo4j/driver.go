// Package neo4j provides the knowledge-graph driver wrapper used by the
// graph repositories.  The Bolt driver is hidden behind narrow Result,
// Transaction and DriverInterface abstractions so repository code can be
// unit tested against fakes instead of a running database.
package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Abstractions
// ─────────────────────────────────────────────────────────────────────────────

// TransactionWork is a unit of work executed inside a managed transaction.
type TransactionWork func(tx Transaction) (interface{}, error)

// Result abstracts the driver's streaming query result.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// Transaction abstracts a managed transaction.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// DriverInterface is the surface repositories depend on.
type DriverInterface interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (interface{}, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (interface{}, error)
	HealthCheck(ctx context.Context) error
}

// internalSession abstracts neo4j.SessionWithContext.
type internalSession interface {
	ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// internalDriver abstracts neo4j.DriverWithContext.
type internalDriver interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession
	Close(ctx context.Context) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Bolt-backed implementations
// ─────────────────────────────────────────────────────────────────────────────

type stdResult struct {
	res neo4j.ResultWithContext
}

func (r *stdResult) Next(ctx context.Context) bool {
	return r.res.Next(ctx)
}

func (r *stdResult) Record() *neo4j.Record {
	return r.res.Record()
}

func (r *stdResult) Err() error {
	return r.res.Err()
}

func (r *stdResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return r.res.Consume(ctx)
}

type stdTransaction struct {
	tx neo4j.ManagedTransaction
}

func (t *stdTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return &stdResult{res: res}, nil
}

type stdSession struct {
	s neo4j.SessionWithContext
}

func (s *stdSession) ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	})
}

func (s *stdSession) ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	})
}

func (s *stdSession) Close(ctx context.Context) error {
	return s.s.Close(ctx)
}

type stdDriver struct {
	d neo4j.DriverWithContext
}

func (d *stdDriver) VerifyConnectivity(ctx context.Context) error {
	return d.d.VerifyConnectivity(ctx)
}

func (d *stdDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession {
	return &stdSession{s: d.d.NewSession(ctx, config)}
}

func (d *stdDriver) Close(ctx context.Context) error {
	return d.d.Close(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver
// ─────────────────────────────────────────────────────────────────────────────

// Driver wraps the Bolt driver with session handling and transaction
// helpers.  A single Driver is shared by all graph repositories and is safe
// for concurrent use.
type Driver struct {
	driver internalDriver
	cfg    config.Neo4jConfig
	logger logging.Logger
	once   sync.Once
}

var _ DriverInterface = (*Driver)(nil)

// NewDriver connects to Neo4j and verifies connectivity before returning.
func NewDriver(cfg config.Neo4jConfig, log logging.Logger) (*Driver, error) {
	authToken := neo4j.BasicAuth(cfg.User, cfg.Password, "")

	drv, err := neo4j.NewDriverWithContext(cfg.URI, authToken, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		} else {
			c.MaxConnectionPoolSize = 50
		}
		c.MaxConnectionLifetime = 1 * time.Hour
		if cfg.ConnectionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		} else {
			c.ConnectionAcquisitionTimeout = 60 * time.Second
		}
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to create neo4j driver")
	}

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := drv.VerifyConnectivity(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to connect to neo4j")
	}

	log.Info("Connected to Neo4j",
		logging.String("uri", cfg.URI),
		logging.String("database", cfg.Database))

	return &Driver{
		driver: &stdDriver{d: drv},
		cfg:    cfg,
		logger: log,
	}, nil
}

// Session opens a session against the configured database, falling back to
// the server default database when none is configured.
func (d *Driver) Session(ctx context.Context, accessMode neo4j.AccessMode) internalSession {
	dbName := d.cfg.Database
	if dbName == "" {
		dbName = "neo4j"
	}
	return d.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: dbName,
		AccessMode:   accessMode,
	})
}

// ReadSession opens a read-mode session.
func (d *Driver) ReadSession(ctx context.Context) internalSession {
	return d.Session(ctx, neo4j.AccessModeRead)
}

// WriteSession opens a write-mode session.
func (d *Driver) WriteSession(ctx context.Context) internalSession {
	return d.Session(ctx, neo4j.AccessModeWrite)
}

// ExecuteRead runs work inside a managed read transaction and returns its
// result.
func (d *Driver) ExecuteRead(ctx context.Context, work TransactionWork) (interface{}, error) {
	session := d.ReadSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		return work(tx)
	})
	if err != nil {
		d.logger.Error("Neo4j read transaction failed", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "neo4j read failed")
	}
	return result, nil
}

// ExecuteWrite runs work inside a managed write transaction and returns its
// result.
func (d *Driver) ExecuteWrite(ctx context.Context, work TransactionWork) (interface{}, error) {
	session := d.WriteSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		return work(tx)
	})
	if err != nil {
		d.logger.Error("Neo4j write transaction failed", logging.Err(err))
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "neo4j write failed")
	}
	return result, nil
}

// HealthCheck verifies connectivity and runs a trivial query.
func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "neo4j connectivity check failed")
	}

	_, err := d.ExecuteRead(ctx, func(tx Transaction) (interface{}, error) {
		result, err := tx.Run(ctx, "RETURN 1 AS health", nil)
		if err != nil {
			return nil, err
		}
		if result.Next(ctx) {
			return result.Record().Values[0], nil
		}
		return nil, result.Err()
	})
	return err
}

// Close shuts the driver down.  Safe to call more than once.
func (d *Driver) Close() error {
	var err error
	d.once.Do(func() {
		err = d.driver.Close(context.Background())
		if err == nil {
			d.logger.Info("Closed Neo4j driver")
		} else {
			d.logger.Error("Failed to close Neo4j driver", logging.Err(err))
		}
	})
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Record helpers
// ─────────────────────────────────────────────────────────────────────────────

// ExtractSingleRecord maps the first record of a result, returning a
// not-found error when the result is empty.
func ExtractSingleRecord[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) (T, error) {
	var zero T
	if result.Next(ctx) {
		return mapper(result.Record())
	}
	if err := result.Err(); err != nil {
		return zero, err
	}
	return zero, appErrors.New(appErrors.ErrCodeNotFound, "no record found")
}

// CollectRecords maps every record of a result into a slice.
func CollectRecords[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) ([]T, error) {
	var items []T
	for result.Next(ctx) {
		item, err := mapper(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
