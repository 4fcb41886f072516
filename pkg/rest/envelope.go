package rest

import (
	"net/http"

	"github.com/edgeflare/sqlrest/pkg/httputil"
	"github.com/edgeflare/sqlrest/pkg/query"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
)

// Envelope is the body of every response. It carries either Result or
// Error, never both.
type Envelope struct {
	Request RequestInfo     `json:"request"`
	Result  *sqlexec.Result `json:"result,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

// RequestInfo echoes what the request resolved to.
type RequestInfo struct {
	User string `json:"user"`
	query.ResourcePath
	Query *query.CompiledQuery `json:"query,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Query   string   `json:"query,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
	Trace   []string `json:"trace,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, env *Envelope) {
	httputil.JSON(w, status, env)
}
