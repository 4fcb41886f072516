package sqlrest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/sqlrest/pkg/config"
	"github.com/edgeflare/sqlrest/pkg/httputil"
	mw "github.com/edgeflare/sqlrest/pkg/httputil/middleware"
	"github.com/edgeflare/sqlrest/pkg/metrics"
	"github.com/edgeflare/sqlrest/pkg/pgx"
	"github.com/edgeflare/sqlrest/pkg/query"
	"github.com/edgeflare/sqlrest/pkg/query/pgparse"
	"github.com/edgeflare/sqlrest/pkg/rest"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
	"github.com/edgeflare/sqlrest/pkg/sqlite"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the REST API server",
	Long:    `Starts a REST API server that compiles requests into SQL and runs them with the caller's basic auth credentials`,
	RunE:    runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("backend", "", "database backend (postgres, sqlite)")
	f.StringP("rest.listenAddr", "l", "", "REST server listen address")
	f.String("rest.baseURL", "", "path prefix for API endpoints")
	f.Bool("rest.debug", false, "include error causes in 500 responses")
	f.StringSlice("rest.deniedUsers", nil, "database users that may never connect")
	f.Bool("rest.inlinePatterns", false, "render LIKE filters as literals instead of parameters")
	f.Bool("rest.strictRawQuery", false, "check raw queries with the PostgreSQL parser")
	f.String("rest.idField", "", "default id column")
	f.Duration("rest.statementTimeout", 0, "cancel statements running longer than this")
	f.Bool("rest.tls.enabled", false, "serve HTTPS, generating a self-signed certificate if needed")
	f.StringP("postgres.connString", "c", "", "PostgreSQL connection string; user, password and database are taken from each request")
	f.Int32("postgres.maxConns", 0, "maximum connections per pool")
	f.String("sqlite.dataDir", "", "directory holding <database>.db files")
	f.Bool("sqlite.create", false, "create missing database files")
	f.Bool("metrics.enabled", false, "serve Prometheus metrics")
	f.String("metrics.addr", "", "metrics server listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	exec, compilerOpts, err := newExecutor(cfg)
	if err != nil {
		return err
	}

	server := rest.NewServer(exec, rest.Options{
		BaseURL:          cfg.REST.BaseURL,
		Debug:            cfg.REST.Debug,
		DeniedUsers:      cfg.REST.DeniedUsers,
		BasicAuth:        cfg.REST.BasicAuth,
		Compiler:         compilerOpts,
		MaxBodyBytes:     cfg.REST.MaxBodyBytes,
		StatementTimeout: cfg.REST.StatementTimeout,
		Logger:           logger,
	})
	defer server.Close()

	r := newRouter(cfg)
	server.Register(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.ListenAndServe(cfg.REST.ListenAddr)
	}()

	select {
	case err = <-errChan:
		stop()
	case <-ctx.Done():
		logger.Info("received termination signal, shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = r.Shutdown(shutdownCtx)
		cancel()
	}

	wg.Wait()
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("server gracefully stopped")
	return nil
}

// newExecutor builds the executor for cfg.Backend and the compiler options
// matching its dialect.
func newExecutor(cfg *config.Config) (sqlexec.Executor, query.Options, error) {
	opts := query.Options{
		InlinePatterns: cfg.REST.InlinePatterns,
		IDField:        cfg.REST.IDField,
	}

	switch cfg.Backend {
	case config.BackendSQLite:
		opts.Dialect = query.SQLite
		exec, err := sqlite.New(sqlite.Options{
			DataDir:         cfg.SQLite.DataDir,
			DefaultDatabase: cfg.SQLite.DefaultDatabase,
			Create:          cfg.SQLite.Create,
			Logger:          logger,
		})
		if err != nil {
			return nil, opts, err
		}
		if cfg.REST.StrictRawQuery {
			logger.Warn("rest.strictRawQuery only applies to the postgres backend")
		}
		return exec, opts, nil

	default:
		opts.Dialect = query.Postgres
		if cfg.REST.StrictRawQuery {
			opts.AllowRaw = pgparse.Allow
		}
		pools, err := pgx.NewPoolManager(pgx.PoolOptions{
			ConnString:      cfg.Postgres.ConnString,
			MaxConns:        cfg.Postgres.MaxConns,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
			RetryMaxElapsed: cfg.Postgres.RetryMaxElapsed,
			Logger:          logger,
		})
		if err != nil {
			return nil, opts, err
		}
		return pgx.NewExecutor(pools, logger), opts, nil
	}
}

func newRouter(cfg *config.Config) *httputil.Router {
	opts := []httputil.RouterOptions{
		httputil.WithLogger(logger),
		httputil.WithServerOptions(func(s *http.Server) {
			s.ReadHeaderTimeout = 10 * time.Second
		}),
	}
	if cfg.REST.TLS.Enabled {
		opts = append(opts, httputil.WithTLS(cfg.REST.TLS.CertFile, cfg.REST.TLS.KeyFile))
	}
	r := httputil.NewRouter(opts...)

	r.Use(mw.RequestID, mw.CORSWithOptions(nil))
	if logLevel != "none" {
		r.Use(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}
	return r
}
