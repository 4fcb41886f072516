package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of *pgx.Conn and *pgxpool.Pool that statements are
// executed through, so the executor runs unchanged on a single connection
// in tests and on a pool in the server.
type Conn interface {
	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a statement and returns its rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// SendBatch sends all queued statements in one round trip, run in an
	// implicit transaction.
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}
