package pgx

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/sqlrest/internal/testutil/pgtest"
	"github.com/edgeflare/sqlrest/pkg/sqlexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewPoolManager(t *testing.T) {
	pm, err := NewPoolManager(PoolOptions{ConnString: "postgres://app@db.internal:5432/shop", MaxConns: 3})
	require.NoError(t, err)
	assert.Empty(t, pm.List())
	assert.Equal(t, int32(3), pm.base.MaxConns)
	assert.Equal(t, 5*time.Second, pm.opts.ConnectTimeout)

	_, err = NewPoolManager(PoolOptions{ConnString: "postgres://:bad"})
	assert.Error(t, err)
}

func TestExecutorCloseLogsPools(t *testing.T) {
	pm, err := NewPoolManager(PoolOptions{ConnString: "postgres://app@db.internal:5432/shop"})
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	NewExecutor(pm, zap.New(core)).Close()

	entries := logs.FilterMessage("closing pools").All()
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].ContextMap()["pools"])
}

func TestConfigFor(t *testing.T) {
	pm, err := NewPoolManager(PoolOptions{ConnString: "postgres://app:pw@db.internal:5432/shop"})
	require.NoError(t, err)

	cfg := pm.configFor(sqlexec.Target{User: "alice", Password: "secret", Database: "sales"})
	assert.Equal(t, "alice", cfg.ConnConfig.User)
	assert.Equal(t, "secret", cfg.ConnConfig.Password)
	assert.Equal(t, "alice@sales", poolKey(cfg))

	// the base config is untouched
	assert.Equal(t, "app", pm.base.ConnConfig.User)

	cfg = pm.configFor(sqlexec.Target{})
	assert.Equal(t, "app@shop", poolKey(cfg))
	assert.Equal(t, "pw", cfg.ConnConfig.Password)
}

func TestPoolManagerAcquire(t *testing.T) {
	ctx := context.Background()
	cfg := pgtest.ParseConfig(t)

	pm, err := NewPoolManager(PoolOptions{ConnString: pgtest.ConnString(t), RetryMaxElapsed: time.Second})
	require.NoError(t, err)
	t.Cleanup(pm.Close)

	target := sqlexec.Target{User: cfg.User, Password: cfg.Password, Database: cfg.Database}

	pool, err := pm.Acquire(ctx, target)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	again, err := pm.Acquire(ctx, target)
	require.NoError(t, err)
	assert.Same(t, pool, again)
	assert.Equal(t, []string{target.String()}, pm.List())

	if target.Password == "" {
		t.Skip("password checks need a password-authenticated test user")
	}

	// a wrong password neither connects nor evicts the working pool
	bad := target
	bad.Password = target.Password + "-wrong"
	_, err = pm.Acquire(ctx, bad)
	require.Error(t, err)
	assert.True(t, sqlexec.IsAuthFailure(err), "got %v", err)

	pm.Close()
	assert.Empty(t, pm.List())
}
