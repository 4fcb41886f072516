package rest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/edgeflare/sqlrest/pkg/httputil"
	"github.com/edgeflare/sqlrest/pkg/query"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeExecutor records the last call and answers with res or err.
type fakeExecutor struct {
	mu     sync.Mutex
	target sqlexec.Target
	query  *query.CompiledQuery
	res    *sqlexec.Result
	err    error
	panic  any
	closed bool
}

func (f *fakeExecutor) Execute(_ context.Context, t sqlexec.Target, q *query.CompiledQuery) (*sqlexec.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic != nil {
		panic(f.panic)
	}
	f.target, f.query = t, q
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &sqlexec.Result{Rows: 0, Data: []map[string]any{}}, nil
}

func (f *fakeExecutor) Close() { f.closed = true }

type envelope struct {
	Request map[string]any  `json:"request"`
	Result  *sqlexec.Result `json:"result"`
	Error   *ErrorInfo      `json:"error"`
}

func newTestServer(t *testing.T, exec *fakeExecutor, opts Options) *httputil.Router {
	t.Helper()
	if opts.Compiler.Dialect == nil {
		opts.Compiler.Dialect = query.SQLite
	}
	s := NewServer(exec, opts)
	r := httputil.NewRouter()
	s.Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body, userpass string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userpass != "" {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(userpass)))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if method != http.MethodHead && rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func TestServerSelect(t *testing.T) {
	exec := &fakeExecutor{res: &sqlexec.Result{Rows: 1, Data: []map[string]any{{"name": "roadie"}}}}
	h := newTestServer(t, exec, Options{BaseURL: "/api/"})

	rr, env := do(t, h, http.MethodGet, "/api/shop/bikes?name__startswith=ro&_fields=name", "", "alice:pw")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, sqlexec.Target{User: "alice", Password: "pw", Database: "shop"}, exec.target)
	assert.Equal(t, `SELECT "name" FROM "bikes" WHERE "name" LIKE :name ESCAPE '\'`, exec.query.Text)

	assert.Nil(t, env.Error)
	require.NotNil(t, env.Result)
	assert.Equal(t, int64(1), env.Result.Rows)
	assert.Equal(t, "alice", env.Request["user"])
	assert.Equal(t, "shop", env.Request["database"])
	assert.Equal(t, "bikes", env.Request["table"])
	assert.NotContains(t, env.Request, "id")
	assert.Equal(t, map[string]any{
		"query":      exec.query.Text,
		"parameters": map[string]any{"name": "ro%"},
	}, env.Request["query"])
}

func TestServerEnvelopeKeys(t *testing.T) {
	exec := &fakeExecutor{res: &sqlexec.Result{Rows: 0, Data: []map[string]any{}}}
	h := newTestServer(t, exec, Options{})

	keys := func(rr *httptest.ResponseRecorder) map[string]json.RawMessage {
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw), rr.Body.String())
		return raw
	}

	rr, _ := do(t, h, http.MethodGet, "/shop/bikes", "", "alice:pw")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	raw := keys(rr)
	assert.Contains(t, raw, "result")
	assert.NotContains(t, raw, "error")

	rr, _ = do(t, h, http.MethodGet, "/shop/bikes", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code, rr.Body.String())
	raw = keys(rr)
	assert.Contains(t, raw, "error")
	assert.NotContains(t, raw, "result")
}

func TestServerInsertMultiRow(t *testing.T) {
	exec := &fakeExecutor{res: &sqlexec.Result{Rows: 2, Data: []map[string]any{}}}
	h := newTestServer(t, exec, Options{})

	rr, env := do(t, h, http.MethodPost, "/shop/bikes", `[{"name": "a"}, {"name": "b"}]`, "alice:pw")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, exec.query.MultiRow)
	assert.Equal(t, int64(2), env.Result.Rows)

	q := env.Request["query"].(map[string]any)
	assert.Equal(t, []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}, q["parameters"])
}

func TestServerCompileErrors(t *testing.T) {
	exec := &fakeExecutor{}
	h := newTestServer(t, exec, Options{})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"command after id", "GET", "/shop/bikes/1/_describe", "", 400, "invalid_path", "Invalid path. Command cannot follow an id."},
		{"too many segments", "GET", "/a/b/c/d", "", 400, "invalid_path", "Invalid path."},
		{"no database", "GET", "/", "", 400, "missing_target", "Database or command is required."},
		{"bad command", "GET", "/shop/_nope", "", 400, "invalid_command", `Invalid command "nope".`},
		{"bad body", "POST", "/shop/bikes", `"text"`, 400, "invalid_body", "Invalid body. Must be a JSON list or dictionary."},
		{"bad operator", "GET", "/shop/bikes?a__like=1", "", 400, "invalid_filter", ""},
		{"delete", "DELETE", "/shop/bikes", "", 405, "unsupported_method", "Method DELETE not allowed."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := do(t, h, tt.method, tt.target, tt.body, "alice:pw")
			assert.Equal(t, tt.wantStatus, rr.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, env.Error.Message)
			}
			assert.Nil(t, env.Result)
		})
	}
	assert.Nil(t, exec.query, "nothing reaches the executor")
}

func TestServerRawQueryRejected(t *testing.T) {
	h := newTestServer(t, &fakeExecutor{}, Options{})

	rr, env := do(t, h, http.MethodPost, "/shop/_query", "DROP TABLE bikes", "alice:pw")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "raw_query_rejected", env.Error.Code)
	assert.Equal(t, "DROP TABLE bikes", env.Error.Query)
	assert.Equal(t, "query", env.Request["command"])
}

func TestServerAuth(t *testing.T) {
	h := newTestServer(t, &fakeExecutor{}, Options{})

	rr, env := do(t, h, http.MethodGet, "/shop/bikes", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "User is required.", env.Error.Message)

	rr, env = do(t, h, http.MethodGet, "/shop/bikes", "", "root:toor")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "User root is not allowed.", env.Error.Message)

	static := newTestServer(t, &fakeExecutor{}, Options{BasicAuth: map[string]string{"alice": "pw"}})
	rr, _ = do(t, static, http.MethodGet, "/shop/bikes", "", "alice:nope")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr, _ = do(t, static, http.MethodGet, "/shop/bikes", "", "alice:pw")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServerExecutionErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		debug      bool
		wantStatus int
		wantCode   string
		wantTrace  bool
	}{
		{
			name:       "driver error",
			err:        fmt.Errorf("run: %w", &sqlexec.Error{Code: "42P01", Message: `relation "bikes" does not exist`}),
			wantStatus: http.StatusBadRequest,
			wantCode:   "42P01",
		},
		{
			name:       "authentication failure",
			err:        &sqlexec.Error{Code: "28P01", Message: `password authentication failed for user "alice"`},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "28P01",
		},
		{
			name:       "invalid target",
			err:        fmt.Errorf("%w: database name %q", sqlexec.ErrInvalidTarget, "x/y"),
			wantStatus: http.StatusBadRequest,
			wantCode:   codeTarget,
		},
		{
			name:       "unexpected",
			err:        fmt.Errorf("dial: %w", errors.New("connection refused")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeInternal,
		},
		{
			name:       "unexpected with debug",
			err:        fmt.Errorf("dial: %w", errors.New("connection refused")),
			debug:      true,
			wantStatus: http.StatusInternalServerError,
			wantCode:   codeInternal,
			wantTrace:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeExecutor{err: tt.err}, Options{Debug: tt.debug})
			rr, env := do(t, h, http.MethodGet, "/shop/bikes", "", "alice:pw")

			assert.Equal(t, tt.wantStatus, rr.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Equal(t, tt.wantTrace, len(env.Error.Trace) > 0)
			assert.NotNil(t, env.Request["query"])
		})
	}
}

func TestServerLogsToOptionsLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	exec := &fakeExecutor{err: errors.New("connection refused")}
	h := newTestServer(t, exec, Options{Logger: zap.New(core)})

	rr, _ := do(t, h, http.MethodGet, "/shop/bikes", "", "alice:pw")
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
}

func TestServerPanic(t *testing.T) {
	h := newTestServer(t, &fakeExecutor{panic: "boom"}, Options{Debug: true})
	rr, env := do(t, h, http.MethodGet, "/shop/bikes", "", "alice:pw")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "boom", env.Error.Message)
	assert.NotEmpty(t, env.Error.Trace)

	h = newTestServer(t, &fakeExecutor{panic: "boom"}, Options{})
	_, env = do(t, h, http.MethodGet, "/shop/bikes", "", "alice:pw")
	assert.Empty(t, env.Error.Trace)
}

func TestServerBodyLimit(t *testing.T) {
	h := newTestServer(t, &fakeExecutor{}, Options{MaxBodyBytes: 8})
	rr, env := do(t, h, http.MethodPost, "/shop/bikes", `{"name": "far too long"}`, "alice:pw")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_body", env.Error.Code)
}

func TestServerHealthz(t *testing.T) {
	h := newTestServer(t, &fakeExecutor{}, Options{BaseURL: "/api"})
	rr, _ := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rr.Body.String())
}

func TestServerClose(t *testing.T) {
	exec := &fakeExecutor{}
	NewServer(exec, Options{}).Close()
	assert.True(t, exec.closed)
}

func TestClassify(t *testing.T) {
	q := &query.CompiledQuery{Text: "SELECT 1"}

	status, info := classify(&sqlexec.Error{Code: "23505", Message: "duplicate key"}, q, false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "SELECT 1", info.Query)

	status, info = classify(query.ErrUnsupportedMethod, nil, false)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, "unsupported_method", info.Code)

	_, info = classify(fmt.Errorf("a: %w", errors.New("b")), nil, true)
	assert.Equal(t, []string{"a: b", "b"}, info.Trace)
}
