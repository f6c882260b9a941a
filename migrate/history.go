package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/marwick-io/ledgerstore/dialect"
	"github.com/marwick-io/ledgerstore/migration"
	"github.com/marwick-io/ledgerstore/pool"
)

// DefaultHistoryTable is the schema-history table name used when the
// configuration does not override it.
const DefaultHistoryTable = "schema_history"

// HistoryStore reads and writes the schema-history table through the
// pool. It is the only component that touches the table.
type HistoryStore struct {
	pool    *pool.Manager
	dialect dialect.Dialect
	table   string
}

func NewHistoryStore(p *pool.Manager, d dialect.Dialect, table string) *HistoryStore {
	if table == "" {
		table = DefaultHistoryTable
	}
	return &HistoryStore{pool: p, dialect: d, table: table}
}

func (s *HistoryStore) tableName() string {
	return s.dialect.QuoteIdentifier(s.table)
}

// EnsureTable creates the schema-history table when it is absent.
func (s *HistoryStore) EnsureTable(ctx context.Context) error {
	if _, err := s.pool.ExecuteUpdate(ctx, s.dialect.CreateHistoryTableSQL(s.table)); err != nil {
		return fmt.Errorf("failed to create history table %s: %w", s.table, err)
	}
	return nil
}

// List returns every history entry in application order.
func (s *HistoryStore) List(ctx context.Context) ([]migration.HistoryEntry, error) {
	rs, err := s.pool.ExecuteQuery(ctx, fmt.Sprintf(
		"SELECT version, description, checksum, execution_time, success, executed_at FROM %s ORDER BY executed_at",
		s.tableName(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}

	entries := make([]migration.HistoryEntry, 0, rs.Len())
	for _, row := range rs.Rows {
		entry, err := scanHistoryRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s table is malformed: %w", s.table, err)
		}
		entries = append(entries, entry)
	}

	// executed_at has millisecond resolution; a fast run can record
	// several versions in the same instant, and the text column would
	// put "10" before "9". Ties are broken with the numeric comparator.
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ExecutedAt.Equal(entries[j].ExecutedAt) {
			return entries[i].ExecutedAt.Before(entries[j].ExecutedAt)
		}
		return entries[i].Version.Less(entries[j].Version)
	})
	return entries, nil
}

// Applied returns the successfully applied entries keyed by version.
func (s *HistoryStore) Applied(ctx context.Context) (map[migration.Version]migration.HistoryEntry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	applied := make(map[migration.Version]migration.HistoryEntry, len(entries))
	for _, entry := range entries {
		if entry.Success {
			applied[entry.Version] = entry
		}
	}
	return applied, nil
}

// Record upserts one entry through the pool, outside any migration
// transaction. Used to audit failed applies after their rollback.
func (s *HistoryStore) Record(ctx context.Context, entry migration.HistoryEntry) error {
	return s.pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return s.record(ctx, conn, entry)
	})
}

// RecordTx upserts one entry inside the migration transaction.
func (s *HistoryStore) RecordTx(ctx context.Context, tx *sql.Tx, entry migration.HistoryEntry) error {
	return s.record(ctx, tx, entry)
}

// DeleteTx removes the entry for version inside a rollback transaction.
func (s *HistoryStore) DeleteTx(ctx context.Context, tx *sql.Tx, version migration.Version) error {
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE version = ?", s.tableName()),
		string(version),
	); err != nil {
		return fmt.Errorf("failed to delete history entry %s: %w", version, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *HistoryStore) record(ctx context.Context, ex execer, entry migration.HistoryEntry) error {
	// One row per version: a retry after a failed attempt replaces the
	// failed audit entry.
	if _, err := ex.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE version = ?", s.tableName()),
		string(entry.Version),
	); err != nil {
		return fmt.Errorf("failed to replace history entry %s: %w", entry.Version, err)
	}

	if _, err := ex.ExecContext(ctx,
		fmt.Sprintf(
			"INSERT INTO %s (version, description, checksum, execution_time, success, executed_at) VALUES (?, ?, ?, ?, ?, ?)",
			s.tableName(),
		),
		string(entry.Version),
		entry.Description,
		entry.Checksum,
		entry.ExecutionTime.Milliseconds(),
		entry.Success,
		entry.ExecutedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to record history entry %s: %w", entry.Version, err)
	}
	return nil
}

func scanHistoryRow(row []any) (migration.HistoryEntry, error) {
	if len(row) != 6 {
		return migration.HistoryEntry{}, fmt.Errorf("expected 6 columns, got %d", len(row))
	}

	version, err := columnString(row[0])
	if err != nil {
		return migration.HistoryEntry{}, fmt.Errorf("version column: %w", err)
	}
	description, err := columnString(row[1])
	if err != nil {
		return migration.HistoryEntry{}, fmt.Errorf("description column: %w", err)
	}
	checksum, err := columnString(row[2])
	if err != nil {
		return migration.HistoryEntry{}, fmt.Errorf("checksum column: %w", err)
	}
	execMillis, err := columnInt64(row[3])
	if err != nil {
		return migration.HistoryEntry{}, fmt.Errorf("execution_time column: %w", err)
	}
	success, err := columnBool(row[4])
	if err != nil {
		return migration.HistoryEntry{}, fmt.Errorf("success column: %w", err)
	}
	executedAt, err := columnInt64(row[5])
	if err != nil {
		return migration.HistoryEntry{}, fmt.Errorf("executed_at column: %w", err)
	}

	return migration.HistoryEntry{
		Version:       migration.Version(version),
		Description:   description,
		Checksum:      checksum,
		ExecutionTime: time.Duration(execMillis) * time.Millisecond,
		Success:       success,
		ExecutedAt:    time.UnixMilli(executedAt).UTC(),
	}, nil
}

// Column helpers tolerate the driver differences between mysql ([]byte)
// and sqlite (string / int64).

func columnString(v any) (string, error) {
	switch value := v.(type) {
	case string:
		return value, nil
	case []byte:
		return string(value), nil
	default:
		return "", fmt.Errorf("unexpected type %T", v)
	}
}

func columnInt64(v any) (int64, error) {
	switch value := v.(type) {
	case int64:
		return value, nil
	case []byte:
		return strconv.ParseInt(string(value), 10, 64)
	case string:
		return strconv.ParseInt(value, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func columnBool(v any) (bool, error) {
	switch value := v.(type) {
	case bool:
		return value, nil
	case int64:
		return value != 0, nil
	case []byte:
		return string(value) == "1" || string(value) == "true", nil
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}
