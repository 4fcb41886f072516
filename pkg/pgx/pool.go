package pgx

import (
	"cmp"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/sqlrest/pkg/metrics"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)


// PoolOptions configure how a PoolManager opens pools.
type PoolOptions struct {
	// ConnString supplies host, port, TLS and default database. User and
	// password are replaced per target.
	ConnString      string
	MaxConns        int32
	ConnectTimeout  time.Duration // per ping attempt, defaults to 5 seconds
	RetryMaxElapsed time.Duration // total ping retry budget, defaults to 15 seconds
	Logger          *zap.Logger
}

// PoolManager keeps one *pgxpool.Pool per user and database. A pool is
// only handed out to a caller presenting the password it was opened with.
type PoolManager struct {
	base   *pgxpool.Config
	opts   PoolOptions
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[string]*entry
}

type entry struct {
	pool   *pgxpool.Pool
	digest [sha256.Size]byte
}

// NewPoolManager parses opts.ConnString and returns an empty manager.
// No connection is made until the first Acquire.
func NewPoolManager(opts PoolOptions) (*PoolManager, error) {
	base, err := pgxpool.ParseConfig(opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("pgx: parse connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		base.MaxConns = opts.MaxConns
	}
	opts.ConnectTimeout = cmp.Or(opts.ConnectTimeout, 5*time.Second)
	opts.RetryMaxElapsed = cmp.Or(opts.RetryMaxElapsed, 15*time.Second)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PoolManager{
		base:   base,
		opts:   opts,
		logger: logger,
		pools:  make(map[string]*entry),
	}, nil
}

// Acquire returns the pool for t, opening it on first use. A pool cached
// under a different password is replaced once a pool with the new
// password connects.
func (m *PoolManager) Acquire(ctx context.Context, t sqlexec.Target) (*pgxpool.Pool, error) {
	cfg := m.configFor(t)
	key := poolKey(cfg)
	digest := sha256.Sum256([]byte(cfg.ConnConfig.Password))

	m.mu.RLock()
	e, ok := m.pools[key]
	m.mu.RUnlock()
	if ok && sameDigest(e.digest, digest) {
		return e.pool, nil
	}

	pool, err := m.open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.pools[key]; ok {
		if sameDigest(cur.digest, digest) {
			// lost a race with a concurrent Acquire
			pool.Close()
			return cur.pool, nil
		}
		cur.pool.Close()
		metrics.OpenPools.Dec()
	}
	m.pools[key] = &entry{pool: pool, digest: digest}
	metrics.OpenPools.Inc()
	m.logger.Debug("opened pool", zap.String("pool", key))

	return pool, nil
}

// Close closes all connection pools.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.pools {
		e.pool.Close()
		metrics.OpenPools.Dec()
	}
	m.pools = make(map[string]*entry)
}

// List returns the keys of all open pools, sorted.
func (m *PoolManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.pools))
	for key := range m.pools {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func (m *PoolManager) configFor(t sqlexec.Target) *pgxpool.Config {
	cfg := m.base.Copy()
	if t.User != "" {
		cfg.ConnConfig.User = t.User
		cfg.ConnConfig.Password = t.Password
	}
	if t.Database != "" {
		cfg.ConnConfig.Database = t.Database
	}
	return cfg
}

func poolKey(cfg *pgxpool.Config) string {
	return cfg.ConnConfig.User + "@" + cfg.ConnConfig.Database
}

func sameDigest(a, b [sha256.Size]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// open creates a pool and pings it, retrying network failures with
// exponential backoff. Errors reported by the server are not retried.
func (m *PoolManager) open(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()

		err := pool.Ping(pingCtx)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = m.opts.RetryMaxElapsed

	notify := func(err error, wait time.Duration) {
		m.logger.Warn("ping failed, retrying",
			zap.String("pool", poolKey(cfg)), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping %s: %w", poolKey(cfg), translateError(err))
	}
	return pool, nil
}
