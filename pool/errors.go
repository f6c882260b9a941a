package pool

import (
	"errors"
	"fmt"

	"github.com/marwick-io/ledgerstore/dialect"
)

var (
	// ErrUnavailable is returned by lease and execute calls while the pool
	// is closed or the backing store is unhealthy.
	ErrUnavailable = errors.New("connection pool is unavailable")

	ErrAlreadyInitialized = errors.New("connection pool is already initialized")
)

// StatementError carries a failed statement (truncated for logs) together
// with the driver error code when the dialect can extract one.
type StatementError struct {
	Statement string
	Code      int
	Err       error
}

func (e *StatementError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("statement failed (code %d): %s: %v", e.Code, e.Statement, e.Err)
	}
	return fmt.Sprintf("statement failed: %s: %v", e.Statement, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

const maxStatementLogLength = 200

func newStatementError(d dialect.Dialect, stmt string, err error) *StatementError {
	code := 0
	if d != nil {
		if c, ok := d.ErrorCode(err); ok {
			code = c
		}
	}
	return &StatementError{
		Statement: TruncateStatement(stmt),
		Code:      code,
		Err:       err,
	}
}

// TruncateStatement shortens stmt to a log-safe length.
func TruncateStatement(stmt string) string {
	runes := []rune(stmt)
	if len(runes) <= maxStatementLogLength {
		return stmt
	}
	return string(runes[:maxStatementLogLength]) + "..."
}
