package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/edgeflare/sqlrest/pkg/query"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
)

// Error codes for failures that carry no driver code.
const (
	codeAuth     = "auth"
	codeInternal = "internal"
	codeTarget   = "invalid_target"
)

// classify maps an error to its HTTP status and error body. Compiler and
// database errors are reported verbatim; anything else is a server error
// whose cause chain is only exposed when debug is set.
func classify(err error, q *query.CompiledQuery, debug bool) (int, *ErrorInfo) {
	var (
		qErr  *query.Error
		dbErr *sqlexec.Error
	)

	switch {
	case errors.As(err, &qErr):
		status := http.StatusBadRequest
		if qErr.Kind == query.KindUnsupportedMethod {
			status = http.StatusMethodNotAllowed
		}
		return status, &ErrorInfo{Code: qErr.Kind.String(), Message: qErr.Message, Query: qErr.Query}

	case errors.As(err, &dbErr):
		status := http.StatusBadRequest
		if sqlexec.IsAuthFailure(err) {
			status = http.StatusUnauthorized
		}
		info := &ErrorInfo{Code: dbErr.Code, Message: dbErr.Message}
		if q != nil {
			info.Query = q.Text
		}
		return status, info

	case errors.Is(err, sqlexec.ErrInvalidTarget):
		return http.StatusBadRequest, &ErrorInfo{Code: codeTarget, Message: err.Error()}
	}

	info := &ErrorInfo{Code: codeInternal, Message: err.Error()}
	if q != nil {
		info.Query = q.Text
	}
	if debug {
		info.Trace = causes(err)
	}
	return http.StatusInternalServerError, info
}

// causes lists the messages of err's wrap chain, outermost first.
func causes(err error) []string {
	var out []string
	for ; err != nil; err = errors.Unwrap(err) {
		out = append(out, err.Error())
	}
	return out
}

// stackLines splits a runtime stack dump into trimmed lines.
func stackLines(stack []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(stack), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
