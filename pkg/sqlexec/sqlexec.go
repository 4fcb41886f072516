// Package sqlexec defines the contract between the HTTP host and the
// database backends that run compiled statements.
package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edgeflare/sqlrest/pkg/query"
)

// ErrInvalidTarget is returned when a Target cannot name a database.
var ErrInvalidTarget = errors.New("invalid target")

// Target is who runs a statement, and where.
type Target struct {
	User     string
	Password string
	Database string
}

// Validate checks the fields every backend needs.
func (t Target) Validate() error {
	if t.Database == "" {
		return fmt.Errorf("%w: database is required", ErrInvalidTarget)
	}
	return nil
}

// String omits the password.
func (t Target) String() string {
	return t.User + "@" + t.Database
}

// Result is the outcome of one statement. Rows is the affected row count
// for writes and the number of rows in Data for reads.
type Result struct {
	Rows int64            `json:"rows"`
	Data []map[string]any `json:"data"`
}

// Executor runs compiled statements. Implementations must be safe for
// concurrent use.
type Executor interface {
	// Execute runs q as t. Target.Database may be empty for statements
	// that do not need one, such as listing databases.
	Execute(ctx context.Context, t Target, q *query.CompiledQuery) (*Result, error)
	Close()
}

// Error is a failure reported by the database itself.
type Error struct {
	Code    string // SQLSTATE or driver error code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err is an authentication or authorization
// failure: SQLSTATE class 28.
func IsAuthFailure(err error) bool {
	var dbErr *Error
	if !errors.As(err, &dbErr) {
		return false
	}
	return strings.HasPrefix(dbErr.Code, "28")
}
