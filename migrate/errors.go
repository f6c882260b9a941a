package migrate

import (
	"errors"
	"fmt"

	"github.com/marwick-io/ledgerstore/migration"
)

var (
	// ErrTargetNotFound is returned by RollbackTo when the target version
	// was never applied.
	ErrTargetNotFound = errors.New("target version was never applied")

	// ErrNotRegistered is returned when an applied version has no
	// registered migration to roll it back with.
	ErrNotRegistered = errors.New("applied version is not registered")

	// ErrNotUndoable is returned when a migration has no reverse script.
	ErrNotUndoable = errors.New("migration has no reverse script")
)

// ValidationError reports a migration that failed its structural
// precondition check.
type ValidationError struct {
	Version migration.Version
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("migration %s failed validation: %v", e.Version, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ApplyError reports a forward script that failed; its transaction has
// been rolled back.
type ApplyError struct {
	Version migration.Version
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("migration %s failed to apply: %v", e.Version, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// RollbackError reports a reverse script that failed; the version remains
// applied.
type RollbackError struct {
	Version migration.Version
	Err     error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("migration %s failed to roll back: %v", e.Version, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }
