package lazydb

import (
	"errors"
	"fmt"
)

// Precondition errors. These are returned immediately, before any store
// work and before the readiness gate waits, so callers can tell a misuse
// apart from a store failure.
var (
	ErrDatabaseClosed = errors.New("lazydb: operation attempted on a closed database")
	ErrDatabaseFailed = errors.New("lazydb: operation attempted on a database that failed to initialize")
	ErrQueryConsumed  = errors.New("lazydb: query set already executed")
)

// TableError reports an operation against a table the schema doesn't know.
type TableError struct {
	Table string
	Op    string
}

func unknownTable(op, table string) error {
	return &TableError{Table: table, Op: op}
}

func (e *TableError) Error() string {
	return fmt.Sprintf("lazydb: %s: unknown table %q", e.Op, e.Table)
}
