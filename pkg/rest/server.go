package rest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/sqlrest/pkg/httputil"
	"github.com/edgeflare/sqlrest/pkg/httputil/middleware"
	"github.com/edgeflare/sqlrest/pkg/metrics"
	"github.com/edgeflare/sqlrest/pkg/query"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is 0.
const DefaultMaxBodyBytes = 10 << 20

// Options configure a Server.
type Options struct {
	// BaseURL is stripped from request paths before they are resolved.
	BaseURL string
	// Debug adds error causes and panic stacks to 500 responses.
	Debug bool
	// DeniedUsers may never connect; root when nil.
	DeniedUsers []string
	// BasicAuth, when set, is checked locally instead of passing
	// credentials through to the database.
	BasicAuth        map[string]string
	Compiler         query.Options
	MaxBodyBytes     int64
	StatementTimeout time.Duration
	Logger           *zap.Logger
}

// Server translates HTTP requests into statements and runs them on an
// executor.
type Server struct {
	compiler *query.Compiler
	exec     sqlexec.Executor
	opts     Options
	logger   *zap.Logger
	handler  http.Handler
}

// NewServer returns a Server running statements on exec.
func NewServer(exec sqlexec.Executor, opts Options) *Server {
	if opts.DeniedUsers == nil {
		opts.DeniedUsers = []string{"root"}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.MaxBodyBytes = cmp.Or(opts.MaxBodyBytes, DefaultMaxBodyBytes)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		compiler: query.NewCompiler(opts.Compiler),
		exec:     exec,
		opts:     opts,
		logger:   logger,
	}
	s.handler = middleware.Chain(http.HandlerFunc(s.handleRequest),
		middleware.BasicAuth(&middleware.BasicAuthOptions{
			Credentials: opts.BasicAuth,
			DeniedUsers: opts.DeniedUsers,
			OnError:     s.writeAuthError,
		}),
	)
	return s
}

// Register mounts the server under BaseURL on r, plus GET /healthz.
func (s *Server) Register(r *httputil.Router) {
	r.HandleFunc("GET /healthz", httputil.Health)
	r.Handle(s.opts.BaseURL+"/", s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases the executor.
func (s *Server) Close() {
	s.exec.Close()
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, status int, message string) {
	metrics.Requests.WithLabelValues("none", strconv.Itoa(status)).Inc()
	writeEnvelope(w, status, &Envelope{Error: &ErrorInfo{Code: codeAuth, Message: message}})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromContextOr(r.Context(), s.logger)
	creds, _ := httputil.BasicAuthCredentials(r)
	env := &Envelope{Request: RequestInfo{User: creds.User}}

	var q *query.CompiledQuery
	respond := func(status int) {
		kind := "none"
		if q != nil {
			kind = q.Kind.String()
		}
		metrics.Requests.WithLabelValues(kind, strconv.Itoa(status)).Inc()
		writeEnvelope(w, status, env)
	}
	fail := func(err error) {
		status, info := classify(err, q, s.opts.Debug)
		env.Error = info
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", zap.Error(err))
		} else {
			logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
		}
		respond(status)
	}

	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			stack := debug.Stack()
			logger.Error("panic serving request", zap.Any("panic", v), zap.ByteString("stack", stack))
			env.Result = nil
			env.Error = &ErrorInfo{Code: codeInternal, Message: fmt.Sprint(v)}
			if s.opts.Debug {
				env.Error.Trace = stackLines(stack)
			}
			respond(http.StatusInternalServerError)
		}
	}()

	rp, err := query.ResolvePath(strings.TrimPrefix(r.URL.Path, s.opts.BaseURL))
	if err != nil {
		s.countCompileError(err)
		fail(err)
		return
	}
	env.Request.ResourcePath = rp

	body, err := s.readBody(w, r)
	if err != nil {
		fail(err)
		return
	}

	q, err = s.compiler.Compile(rp, r.URL.Query(), body, r.Method)
	if err != nil {
		s.countCompileError(err)
		fail(err)
		return
	}
	env.Request.Query = q

	ctx := r.Context()
	if s.opts.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.StatementTimeout)
		defer cancel()
	}

	target := sqlexec.Target{User: creds.User, Password: creds.Password, Database: rp.Database}
	res, err := s.exec.Execute(ctx, target, q)
	if err != nil {
		fail(err)
		return
	}

	env.Result = res
	respond(http.StatusOK)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", &query.Error{Kind: query.KindInvalidBody, Message: fmt.Sprintf("Invalid body: larger than %d bytes.", tooLarge.Limit)}
		}
		return "", &query.Error{Kind: query.KindInvalidBody, Message: fmt.Sprintf("Invalid body: %v", err)}
	}
	return string(b), nil
}

func (s *Server) countCompileError(err error) {
	var qErr *query.Error
	if errors.As(err, &qErr) {
		metrics.CompileErrors.WithLabelValues(qErr.Kind.String()).Inc()
	}
}
