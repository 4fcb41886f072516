// Package sqlite runs compiled statements against SQLite database files.
// Every database name maps to <DataDir>/<name>.db.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/sqlrest/pkg/metrics"
	"github.com/edgeflare/sqlrest/pkg/query"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	backendName = "sqlite"
	fileExt     = ".db"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Options configure an Executor.
type Options struct {
	DataDir string
	// DefaultDatabase is used when a target names no database.
	DefaultDatabase string
	// Create opens missing database files instead of failing.
	Create bool
	Logger *zap.Logger
}

// Executor keeps one *sql.DB per database file.
type Executor struct {
	opts   Options
	logger *zap.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

var _ sqlexec.Executor = (*Executor)(nil)

// New checks that opts.DataDir is a directory and returns an Executor.
func New(opts Options) (*Executor, error) {
	info, err := os.Stat(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("sqlite: data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sqlite: data dir %s is not a directory", opts.DataDir)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{opts: opts, logger: logger, dbs: make(map[string]*sql.DB)}, nil
}

// Execute runs q against the database file named by t.Database. Listing
// databases lists the data directory.
func (e *Executor) Execute(ctx context.Context, t sqlexec.Target, q *query.CompiledQuery) (*sqlexec.Result, error) {
	defer metrics.ObserveStatement(backendName, q.Kind.String(), time.Now())

	if q.Kind == query.StmtShowDatabases {
		return e.listDatabases()
	}

	name := t.Database
	if name == "" {
		name = e.opts.DefaultDatabase
	}
	db, err := e.open(ctx, name)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("executing", zap.Stringer("kind", q.Kind), zap.String("query", q.Text), zap.String("database", name))
	return Run(ctx, db, q)
}

// Close closes every open database.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, db := range e.dbs {
		if err := db.Close(); err != nil {
			e.logger.Warn("closing database", zap.String("database", name), zap.Error(err))
		}
		metrics.OpenPools.Dec()
	}
	e.dbs = make(map[string]*sql.DB)
}

func (e *Executor) open(ctx context.Context, name string) (*sql.DB, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: database name %q", sqlexec.ErrInvalidTarget, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if db, ok := e.dbs[name]; ok {
		return db, nil
	}

	mode := "rw"
	if e.opts.Create {
		mode = "rwc"
	}
	path := filepath.Join(e.opts.DataDir, name+fileExt)
	dsn := fmt.Sprintf("file:%s?mode=%s&_busy_timeout=5000&_foreign_keys=on", path, mode)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: open %s: %w", name, translateError(err))
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	e.dbs[name] = db
	metrics.OpenPools.Inc()
	return db, nil
}

func (e *Executor) listDatabases() (*sqlexec.Result, error) {
	entries, err := os.ReadDir(e.opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list databases: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), fileExt)
		if ok && !entry.IsDir() && validName.MatchString(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	data := make([]map[string]any, len(names))
	for i, name := range names {
		data[i] = map[string]any{"name": name}
	}
	return &sqlexec.Result{Rows: int64(len(data)), Data: data}, nil
}

// Run executes q on db. Multi-row statements run in one transaction.
func Run(ctx context.Context, db *sql.DB, q *query.CompiledQuery) (*sqlexec.Result, error) {
	switch {
	case q.MultiRow:
		return runBatch(ctx, db, q)
	case q.Kind.ReturnsRows():
		return runQuery(ctx, db, q)
	default:
		res, err := db.ExecContext(ctx, q.Text, namedArgs(q.Params)...)
		if err != nil {
			return nil, translateError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, translateError(err)
		}
		return &sqlexec.Result{Rows: n, Data: []map[string]any{}}, nil
	}
}

// runQuery collects rows. A statement without result columns, such as a raw
// INSERT, reports the rows it changed instead.
func runQuery(ctx context.Context, db *sql.DB, q *query.CompiledQuery) (*sqlexec.Result, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	defer conn.Close()

	data, cols, err := collectRows(ctx, conn, q)
	if err != nil {
		return nil, err
	}
	if cols > 0 {
		return &sqlexec.Result{Rows: int64(len(data)), Data: data}, nil
	}

	var changed int64
	if err := conn.QueryRowContext(ctx, "SELECT changes()").Scan(&changed); err != nil {
		return nil, translateError(err)
	}
	return &sqlexec.Result{Rows: changed, Data: data}, nil
}

func collectRows(ctx context.Context, conn *sql.Conn, q *query.CompiledQuery) ([]map[string]any, int, error) {
	rows, err := conn.QueryContext(ctx, q.Text, namedArgs(q.Params)...)
	if err != nil {
		return nil, 0, translateError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, translateError(err)
	}

	data := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, translateError(err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		data = append(data, sqlexec.NormalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translateError(err)
	}
	return data, len(cols), nil
}

func runBatch(ctx context.Context, db *sql.DB, q *query.CompiledQuery) (*sqlexec.Result, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translateError(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, q.Text)
	if err != nil {
		return nil, translateError(err)
	}
	defer stmt.Close()

	var affected int64
	for i, params := range q.Batch {
		res, err := stmt.ExecContext(ctx, namedArgs(params)...)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, translateError(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, translateError(err)
		}
		affected += n
	}
	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return &sqlexec.Result{Rows: affected, Data: []map[string]any{}}, nil
}

// namedArgs binds params to :name placeholders in a stable order.
func namedArgs(params map[string]any) []any {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = sql.Named(name, params[name])
	}
	return args
}

// translateError surfaces SQLite errors as *sqlexec.Error.
func translateError(err error) error {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &sqlexec.Error{
			Code:    strconv.Itoa(int(liteErr.ExtendedCode)),
			Message: liteErr.Error(),
			Err:     err,
		}
	}
	return err
}
