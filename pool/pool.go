// Package pool manages a bounded set of connections to one backing
// relational store. It leases exclusively-owned connections, executes
// parameterized queries and updates on behalf of callers, probes the store
// periodically and attempts a bounded reconnection sequence when a probe
// fails.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marwick-io/ledgerstore/dialect"
)

// Config tunes the pool and its health monitoring.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AcquireTimeout bounds how long a lease waits for a free connection.
	AcquireTimeout time.Duration

	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	ReconnectAttempts  int
	ReconnectBaseDelay time.Duration
}

const (
	DefaultMaxOpenConns       = 10
	DefaultMaxIdleConns       = 2
	DefaultAcquireTimeout     = 5 * time.Second
	DefaultProbeInterval      = 30 * time.Second
	DefaultProbeTimeout       = 5 * time.Second
	DefaultReconnectAttempts  = 3
	DefaultReconnectBaseDelay = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	return c
}

// ---

// Manager owns the pool. Lifecycle operations (Initialize, Reload,
// Shutdown) take the lifecycle lock exclusively; lease and execute
// operations take it shared, so callers run concurrently with each other
// but never against a half-open pool.
type Manager struct {
	mu      sync.RWMutex
	db      *sql.DB
	open    bool
	cfg     Config
	dsn     string
	dialect dialect.Dialect
	log     *zap.Logger

	health healthState

	// probe is swapped in tests to force transitions.
	probe func(ctx context.Context) error

	tasksCtx    context.Context
	cancelTasks context.CancelFunc
	tasks       sync.WaitGroup
	leases      sync.WaitGroup
}

// NewManager builds an uninitialized manager. Call Initialize before
// leasing.
func NewManager(d dialect.Dialect, dsn string, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg.withDefaults(),
		dsn:     dsn,
		dialect: d,
		log:     log,
	}
}

// Initialize opens the pool, runs one synchronous probe and starts the
// background prober. It fails without side effects if the probe fails.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return ErrAlreadyInitialized
	}

	if err := m.openLocked(ctx); err != nil {
		return err
	}

	m.tasksCtx, m.cancelTasks = context.WithCancel(context.Background())
	m.tasks.Add(1)
	go m.probeLoop(m.tasksCtx)

	m.log.Info("connection pool initialized",
		zap.String("dialect", m.dialect.Name()),
		zap.Int("max_open_conns", m.cfg.MaxOpenConns))
	return nil
}

func (m *Manager) openLocked(ctx context.Context) error {
	db, err := sql.Open(m.dialect.DriverName(), m.dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s pool: %w", m.dialect.Name(), err)
	}

	db.SetMaxOpenConns(m.cfg.MaxOpenConns)
	db.SetMaxIdleConns(m.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	if err := db.PingContext(probeCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("initial probe of %s store failed: %w", m.dialect.Name(), err)
	}

	m.db = db
	m.open = true
	m.probe = func(ctx context.Context) error { return db.PingContext(ctx) }
	m.health.reset()
	return nil
}

// Reload replaces the pool configuration and data source. It is exclusive
// with all leases: in-flight work finishes against the old pool before the
// swap.
func (m *Manager) Reload(ctx context.Context, dsn string, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return ErrUnavailable
	}

	oldDB, oldDSN, oldCfg := m.db, m.dsn, m.cfg
	m.open = false
	m.leases.Wait()

	m.dsn = dsn
	m.cfg = cfg.withDefaults()
	if err := m.openLocked(ctx); err != nil {
		// Old pool stays in service on a failed reload.
		m.db, m.dsn, m.cfg = oldDB, oldDSN, oldCfg
		m.open = true
		return fmt.Errorf("reload failed: %w", err)
	}

	_ = oldDB.Close()
	m.log.Info("connection pool reloaded", zap.String("dialect", m.dialect.Name()))
	return nil
}

// Shutdown stops the prober and any reconnection sequence, waits for
// outstanding leases and closes the pool. It is idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = false
	db := m.db
	cancel := m.cancelTasks
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.tasks.Wait()
	m.leases.Wait()

	err := db.Close()
	m.log.Info("connection pool shut down")
	if err != nil {
		return fmt.Errorf("failed to close pool: %w", err)
	}
	return nil
}

// ---

// Lease is one connection checked out of the pool. It is exclusively owned
// by the leasing caller and must be released on every exit path.
type Lease struct {
	ID       string
	LeasedAt time.Time

	conn    *sql.Conn
	release sync.Once
	mgr     *Manager
}

func (l *Lease) Conn() *sql.Conn {
	return l.conn
}

// Release returns the connection to the pool. Safe to call more than once.
func (l *Lease) Release() {
	l.release.Do(func() {
		_ = l.conn.Close()
		l.mgr.leases.Done()
	})
}

// Lease checks one connection out of the pool. It fails fast with
// ErrUnavailable while the pool is closed or unhealthy, and otherwise
// waits at most the configured acquisition timeout.
func (m *Manager) Lease(ctx context.Context) (*Lease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leaseLocked(ctx)
}

func (m *Manager) leaseLocked(ctx context.Context) (*Lease, error) {
	if !m.open {
		return nil, fmt.Errorf("%w: pool is closed", ErrUnavailable)
	}
	if !m.health.isHealthy() {
		return nil, fmt.Errorf("%w: backing store is unhealthy", ErrUnavailable)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	conn, err := m.db.Conn(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	m.leases.Add(1)
	return &Lease{
		ID:       uuid.NewString(),
		LeasedAt: time.Now(),
		conn:     conn,
		mgr:      m,
	}, nil
}

// WithConn leases a connection, runs fn with it and releases it on every
// exit path. The lease never outlives the call.
func (m *Manager) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lease, err := m.leaseLocked(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	return fn(ctx, lease.Conn())
}

// ---

// RowSet is a fully materialized query result. Materializing bounds the
// lease lifetime instead of streaming rows past the release.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

func (rs *RowSet) Len() int {
	return len(rs.Rows)
}

// ExecuteQuery leases a connection, binds params positionally, runs the
// query and materializes the result set. The connection is released before
// the call returns.
func (m *Manager) ExecuteQuery(ctx context.Context, query string, params ...any) (*RowSet, error) {
	var result *RowSet

	err := m.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, params...)
		if err != nil {
			return m.statementFailed(query, err)
		}
		defer rows.Close()

		result, err = materialize(rows)
		if err != nil {
			return m.statementFailed(query, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExecuteUpdate leases a connection, runs the statement and returns the
// number of affected rows. The connection is released on success and
// failure alike.
func (m *Manager) ExecuteUpdate(ctx context.Context, stmt string, params ...any) (int64, error) {
	var affected int64

	err := m.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, stmt, params...)
		if err != nil {
			return m.statementFailed(stmt, err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return m.statementFailed(stmt, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (m *Manager) statementFailed(stmt string, err error) error {
	stmtErr := newStatementError(m.dialect, stmt, err)
	m.log.Error("statement execution failed",
		zap.String("statement", stmtErr.Statement),
		zap.Int("code", stmtErr.Code),
		zap.Error(err))
	return stmtErr
}

func materialize(rows *sql.Rows) (*RowSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &RowSet{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result rows: %w", err)
	}

	return result, nil
}
