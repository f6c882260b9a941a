// Package dialect adapts the pool manager and the migration engine to one
// concrete backing store. A dialect knows how to register its database/sql
// driver, build a DSN from connection parameters, emit the DDL for the
// schema-history table and dig driver-specific error codes out of failures.
package dialect

import (
	"errors"
	"fmt"
)

type Dialect interface {
	// Name is the configuration name of the dialect ("mysql", "sqlite").
	Name() string

	// DriverName is the database/sql driver to open connections with.
	DriverName() string

	// DSN builds a driver-specific data source name.
	DSN(params Params) (string, error)

	// CreateHistoryTableSQL returns the idempotent DDL for the
	// schema-history table.
	CreateHistoryTableSQL(table string) string

	// QuoteIdentifier escapes a table or column name.
	QuoteIdentifier(ident string) string

	// ErrorCode extracts the driver error code from err, when err
	// originates from this dialect's driver.
	ErrorCode(err error) (int, bool)
}

type Params struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// Path is the database file location for embedded-file stores.
	Path string
}

var ErrUnknownDialect = errors.New("unknown dialect")

// New returns the dialect registered under name.
func New(name string) (Dialect, error) {
	switch name {
	case "mysql":
		return MySQL{}, nil
	case "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}
