// Package migrate brings the backing schema from its current state to the
// latest registered version through an ordered, audited, transactional
// sequence, and supports controlled rollback.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marwick-io/ledgerstore/dialect"
	"github.com/marwick-io/ledgerstore/migration"
	"github.com/marwick-io/ledgerstore/pool"
)

// Config tunes the engine.
type Config struct {
	// HistoryTable overrides the schema-history table name.
	HistoryTable string

	// AutoRun applies the whole pending plan during Initialize.
	AutoRun bool
}

// Engine applies and rolls back a constructor-injected, ordered set of
// migrations. Migrations run strictly one at a time on a single logical
// sequence.
type Engine struct {
	pool       *pool.Manager
	history    *HistoryStore
	registered []migration.Migration
	cfg        Config
	log        *zap.Logger

	// mu serializes apply and rollback sequences; later migrations may
	// depend on earlier DDL.
	mu sync.Mutex
}

// New validates the registered set (unique versions, structurally sound
// scripts) and builds an engine over it.
func New(p *pool.Manager, d dialect.Dialect, set []migration.Migration, cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	seen := make(map[migration.Version]struct{}, len(set))
	registered := make([]migration.Migration, 0, len(set))
	for _, m := range set {
		if err := m.Validate(); err != nil {
			return nil, &ValidationError{Version: m.Version, Err: err}
		}
		if _, dup := seen[m.Version]; dup {
			return nil, &ValidationError{Version: m.Version, Err: migration.ErrDuplicateVersion}
		}
		seen[m.Version] = struct{}{}
		registered = append(registered, m)
	}

	migration.SortSet(registered)

	return &Engine{
		pool:       p,
		history:    NewHistoryStore(p, d, cfg.HistoryTable),
		registered: registered,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Initialize ensures the schema-history table exists and, when auto-run
// is configured, synchronously applies the pending plan. A pending
// migration failure is returned to the caller, who treats it as fatal to
// startup.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.history.EnsureTable(ctx); err != nil {
		return err
	}

	if !e.cfg.AutoRun {
		return nil
	}
	return e.Migrate(ctx)
}

// Pending computes the plan: every registered migration not yet recorded
// as successfully applied, in (priority, version) order.
func (e *Engine) Pending(ctx context.Context) ([]migration.Migration, error) {
	applied, err := e.history.Applied(ctx)
	if err != nil {
		return nil, err
	}
	return e.pendingAgainst(applied), nil
}

func (e *Engine) pendingAgainst(applied map[migration.Version]migration.HistoryEntry) []migration.Migration {
	pending := make([]migration.Migration, 0, len(e.registered))
	for _, m := range e.registered {
		entry, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if entry.Checksum != m.Checksum() {
			// Audit-only drift detection; execution is not refused.
			e.log.Warn("checksum drift for applied migration",
				zap.String("version", string(m.Version)),
				zap.String("recorded", entry.Checksum),
				zap.String("current", m.Checksum()))
		}
	}
	return pending
}

// Migrate applies the whole pending plan in order, stopping at the first
// failure. Later migrations may assume earlier schema exists, so nothing
// past a failed migration is attempted.
func (e *Engine) Migrate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied, err := e.history.Applied(ctx)
	if err != nil {
		return err
	}

	pending := e.pendingAgainst(applied)
	if len(pending) == 0 {
		e.log.Info("schema is up to date", zap.Int("registered", len(e.registered)))
		return nil
	}

	e.log.Info("applying pending migrations", zap.Int("count", len(pending)))
	for _, m := range pending {
		if err := e.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Apply runs a single migration. Re-applying an already applied version
// is a no-op.
func (e *Engine) Apply(ctx context.Context, m migration.Migration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied, err := e.history.Applied(ctx)
	if err != nil {
		return err
	}
	if _, ok := applied[m.Version]; ok {
		return nil
	}
	return e.apply(ctx, m)
}

// apply opens one transaction, executes the forward script statement by
// statement and records the history entry before commit. On failure the
// transaction is rolled back and a failed audit entry is written outside
// it.
func (e *Engine) apply(ctx context.Context, m migration.Migration) error {
	if err := m.Validate(); err != nil {
		return &ValidationError{Version: m.Version, Err: err}
	}

	start := time.Now()
	execErr := e.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		for _, stmt := range SplitStatements(m.Up) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("statement %q failed: %w", pool.TruncateStatement(stmt), err)
			}
		}

		entry := e.entryFor(m, start, true)
		if err := e.history.RecordTx(ctx, tx, entry); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		return nil
	})

	if execErr != nil {
		e.log.Error("migration failed",
			zap.String("version", string(m.Version)),
			zap.String("description", m.Description),
			zap.Error(execErr))

		// The failed attempt is still audited, outside the transaction
		// that was just rolled back.
		if recErr := e.history.Record(ctx, e.entryFor(m, start, false)); recErr != nil {
			e.log.Error("failed to record failed migration",
				zap.String("version", string(m.Version)),
				zap.Error(recErr))
		}
		return &ApplyError{Version: m.Version, Err: execErr}
	}

	e.log.Info("migration applied",
		zap.String("version", string(m.Version)),
		zap.String("description", m.Description),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (e *Engine) entryFor(m migration.Migration, start time.Time, success bool) migration.HistoryEntry {
	return migration.HistoryEntry{
		Version:       m.Version,
		Description:   m.Description,
		Checksum:      m.Checksum(),
		ExecutionTime: time.Since(start),
		Success:       success,
		ExecutedAt:    time.Now().UTC(),
	}
}

// RollbackTo undoes every applied version strictly after target, newest
// first, each in its own transaction. An empty target rolls back
// everything. The call fails with no side effects when the target was
// never applied.
func (e *Engine) RollbackTo(ctx context.Context, target migration.Version) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied, err := e.history.Applied(ctx)
	if err != nil {
		return err
	}

	if target != "" {
		if _, ok := applied[target]; !ok {
			return fmt.Errorf("%w: %s", ErrTargetNotFound, target)
		}
	}

	// Every applied version in the undo range must have a registered
	// migration; its reverse script is the only way to undo it. Checked
	// up front so a failure leaves no partial rollback behind.
	known := make(map[migration.Version]struct{}, len(e.registered))
	for _, m := range e.registered {
		known[m.Version] = struct{}{}
	}
	var orphan migration.Version
	for version := range applied {
		if target != "" && !target.Less(version) {
			continue
		}
		if _, ok := known[version]; !ok {
			if orphan == "" || orphan.Less(version) {
				orphan = version
			}
		}
	}
	if orphan != "" {
		return &RollbackError{Version: orphan, Err: ErrNotRegistered}
	}

	// Undo in the reverse of apply order.
	var undo []migration.Migration
	for _, m := range e.registered {
		if _, ok := applied[m.Version]; !ok {
			continue
		}
		if target == "" || target.Less(m.Version) {
			undo = append(undo, m)
		}
	}
	for i, j := 0, len(undo)-1; i < j; i, j = i+1, j-1 {
		undo[i], undo[j] = undo[j], undo[i]
	}

	for _, m := range undo {
		if err := e.rollbackOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rollbackOne(ctx context.Context, m migration.Migration) error {
	if !m.CanUndo() {
		return &RollbackError{Version: m.Version, Err: ErrNotUndoable}
	}

	err := e.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		for _, stmt := range SplitStatements(m.Down) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("statement %q failed: %w", pool.TruncateStatement(stmt), err)
			}
		}

		if err := e.history.DeleteTx(ctx, tx, m.Version); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		return nil
	})
	if err != nil {
		e.log.Error("rollback failed",
			zap.String("version", string(m.Version)),
			zap.Error(err))
		return &RollbackError{Version: m.Version, Err: err}
	}

	e.log.Info("migration rolled back", zap.String("version", string(m.Version)))
	return nil
}

// CurrentVersion returns the highest successfully applied version, or the
// empty version when nothing is applied.
func (e *Engine) CurrentVersion(ctx context.Context) (migration.Version, error) {
	applied, err := e.history.Applied(ctx)
	if err != nil {
		return "", err
	}

	var current migration.Version
	for version := range applied {
		if current == "" || current.Less(version) {
			current = version
		}
	}
	return current, nil
}

// History returns every recorded entry, failed attempts included.
func (e *Engine) History(ctx context.Context) ([]migration.HistoryEntry, error) {
	return e.history.List(ctx)
}

// Registered returns the validated migration set in apply order.
func (e *Engine) Registered() []migration.Migration {
	out := make([]migration.Migration, len(e.registered))
	copy(out, e.registered)
	return out
}
