package dialect

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
)

// SQLite targets an embedded database file.
type SQLite struct{}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) DSN(params Params) (string, error) {
	if params.Path == "" {
		return "", errors.New("sqlite dialect requires a database file path")
	}
	// Busy timeout keeps concurrent leases from failing immediately on a
	// locked database file.
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", params.Path), nil
}

func (d SQLite) CreateHistoryTableSQL(table string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"version        TEXT PRIMARY KEY, "+
			"description    TEXT NOT NULL, "+
			"checksum       TEXT NOT NULL, "+
			"execution_time INTEGER NOT NULL, "+
			"success        INTEGER NOT NULL, "+
			"executed_at    INTEGER NOT NULL"+
			")",
		d.QuoteIdentifier(table),
	)
}

func (SQLite) QuoteIdentifier(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) ErrorCode(err error) (int, bool) {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code(), true
	}
	return 0, false
}
