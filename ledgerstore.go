// Package ledgerstore is the persistence core of the virtual-economy
// service: a health-monitored connection pool over one backing relational
// store, plus a version-controlled schema-migration engine. Dependent
// services consume it through the query/update/migration-status contract
// exposed by Store.
package ledgerstore

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/marwick-io/ledgerstore/config"
	"github.com/marwick-io/ledgerstore/dialect"
	"github.com/marwick-io/ledgerstore/migrate"
	"github.com/marwick-io/ledgerstore/migration"
	"github.com/marwick-io/ledgerstore/pool"
)

// Store wires the pool manager and the migration engine together behind
// the contract the rest of the service consumes.
type Store struct {
	dialect dialect.Dialect
	pool    *pool.Manager
	engine  *migrate.Engine
	log     *zap.Logger
}

// Open builds the pool, probes the store, and initializes the migration
// engine over the given migration set. With auto-run configured the whole
// pending plan is applied before Open returns, so dependent services never
// start against a partially migrated schema. On any failure the pool is
// torn down and the error is returned to the host, which treats it as
// fatal to startup.
func Open(ctx context.Context, cfg config.Config, set []migration.Migration, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d, err := dialect.New(cfg.Store.Dialect)
	if err != nil {
		return nil, err
	}

	dsn, err := d.DSN(cfg.DialectParams())
	if err != nil {
		return nil, err
	}

	mgr := pool.NewManager(d, dsn, cfg.PoolSettings(), log)
	if err := mgr.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize connection pool: %w", err)
	}

	engine, err := migrate.New(mgr, d, set, cfg.EngineSettings(), log)
	if err != nil {
		_ = mgr.Shutdown()
		return nil, err
	}

	if err := engine.Initialize(ctx); err != nil {
		_ = mgr.Shutdown()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		dialect: d,
		pool:    mgr,
		engine:  engine,
		log:     log,
	}, nil
}

// ExecuteQuery runs a parameterized query and returns the materialized
// result set.
func (s *Store) ExecuteQuery(ctx context.Context, query string, params ...any) (*pool.RowSet, error) {
	return s.pool.ExecuteQuery(ctx, query, params...)
}

// ExecuteUpdate runs a parameterized statement and returns the number of
// affected rows.
func (s *Store) ExecuteUpdate(ctx context.Context, stmt string, params ...any) (int64, error) {
	return s.pool.ExecuteUpdate(ctx, stmt, params...)
}

// WithConn leases a raw connection for one unit of work and releases it
// on every exit path.
func (s *Store) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	return s.pool.WithConn(ctx, fn)
}

// IsHealthy reports whether the last probe of the backing store
// succeeded.
func (s *Store) IsHealthy() bool {
	return s.pool.IsHealthy()
}

// Health returns the current probe state of the pool.
func (s *Store) Health() pool.Health {
	return s.pool.Health()
}

// CurrentVersion returns the highest successfully applied schema version.
func (s *Store) CurrentVersion(ctx context.Context) (migration.Version, error) {
	return s.engine.CurrentVersion(ctx)
}

// PendingMigrations returns the registered migrations not yet applied, in
// apply order.
func (s *Store) PendingMigrations(ctx context.Context) ([]migration.Migration, error) {
	return s.engine.Pending(ctx)
}

// MigrationHistory returns every schema-history entry, failed attempts
// included.
func (s *Store) MigrationHistory(ctx context.Context) ([]migration.HistoryEntry, error) {
	return s.engine.History(ctx)
}

// Migrate applies the pending plan.
func (s *Store) Migrate(ctx context.Context) error {
	return s.engine.Migrate(ctx)
}

// RollbackTo undoes applied migrations down to target; an empty target
// rolls back everything.
func (s *Store) RollbackTo(ctx context.Context, target migration.Version) error {
	return s.engine.RollbackTo(ctx, target)
}

// Reload swaps connection parameters and pool bounds at runtime. The
// dialect cannot change across a reload.
func (s *Store) Reload(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Store.Dialect != s.dialect.Name() {
		return fmt.Errorf("cannot reload from dialect %q to %q", s.dialect.Name(), cfg.Store.Dialect)
	}

	dsn, err := s.dialect.DSN(cfg.DialectParams())
	if err != nil {
		return err
	}
	return s.pool.Reload(ctx, dsn, cfg.PoolSettings())
}

// Close shuts the pool down. In-flight work finishes first; Close is
// idempotent.
func (s *Store) Close() error {
	return s.pool.Shutdown()
}
