package database

import (
	"context"
	"database/sql"
)

// dbTx is satisfied by both *DB and *sql.Tx, letting repositories run either
// against the shared connection or inside a transaction a caller controls
// (see qr.Service.Issue, which composes several repositories over one tx).
type dbTx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
