package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgeflare/sqlrest/pkg/metrics"
	"github.com/edgeflare/sqlrest/pkg/query"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const backendName = "postgres"

// Executor runs compiled statements on PostgreSQL, one pool per
// requesting user.
type Executor struct {
	pools  *PoolManager
	logger *zap.Logger
}

var _ sqlexec.Executor = (*Executor)(nil)

// NewExecutor returns an Executor drawing connections from pools.
func NewExecutor(pools *PoolManager, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{pools: pools, logger: logger}
}

// Execute runs q as t. The database server authenticates t.
func (e *Executor) Execute(ctx context.Context, t sqlexec.Target, q *query.CompiledQuery) (*sqlexec.Result, error) {
	pool, err := e.pools.Acquire(ctx, t)
	if err != nil {
		return nil, err
	}

	defer metrics.ObserveStatement(backendName, q.Kind.String(), time.Now())
	e.logger.Debug("executing", zap.Stringer("kind", q.Kind), zap.String("query", q.Text), zap.Stringer("target", t))

	return Run(ctx, pool, q)
}

func (e *Executor) Close() {
	e.logger.Debug("closing pools", zap.Strings("pools", e.pools.List()))
	e.pools.Close()
}

// Run executes q on conn: multi-row statements as one batch, row-returning
// statements with Query and everything else with Exec.
func Run(ctx context.Context, conn Conn, q *query.CompiledQuery) (*sqlexec.Result, error) {
	switch {
	case q.MultiRow:
		return runBatch(ctx, conn, q)
	case q.Kind.ReturnsRows():
		return runQuery(ctx, conn, q)
	default:
		tag, err := conn.Exec(ctx, q.Text, args(q.Params)...)
		if err != nil {
			return nil, translateError(err)
		}
		return &sqlexec.Result{Rows: tag.RowsAffected(), Data: []map[string]any{}}, nil
	}
}

func runQuery(ctx context.Context, conn Conn, q *query.CompiledQuery) (*sqlexec.Result, error) {
	rows, err := conn.Query(ctx, q.Text, args(q.Params)...)
	if err != nil {
		return nil, translateError(err)
	}
	data, err := pgx.CollectRows(rows, rowToMap)
	if err != nil {
		return nil, translateError(err)
	}
	if data == nil {
		data = []map[string]any{}
	}
	return &sqlexec.Result{Rows: rows.CommandTag().RowsAffected(), Data: data}, nil
}

func runBatch(ctx context.Context, conn Conn, q *query.CompiledQuery) (*sqlexec.Result, error) {
	batch := &pgx.Batch{}
	for _, params := range q.Batch {
		batch.Queue(q.Text, pgx.NamedArgs(params))
	}

	br := conn.SendBatch(ctx, batch)
	var affected int64
	for i := range q.Batch {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return nil, fmt.Errorf("row %d: %w", i, translateError(err))
		}
		affected += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return nil, translateError(err)
	}
	return &sqlexec.Result{Rows: affected, Data: []map[string]any{}}, nil
}

// args binds params by name. Statements without parameters are sent
// as-is so raw SQL containing @ is not rewritten.
func args(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	return []any{pgx.NamedArgs(params)}
}

func rowToMap(row pgx.CollectableRow) (map[string]any, error) {
	m, err := pgx.RowToMap(row)
	if err != nil {
		return nil, err
	}
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m, nil
}

func normalizeValue(v any) any {
	if b, ok := v.([16]byte); ok {
		return uuid.UUID(b).String()
	}
	return sqlexec.NormalizeValue(v)
}

// translateError surfaces server errors as *sqlexec.Error.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &sqlexec.Error{Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	return err
}
