package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMergeOptions(t *testing.T) {
	opts := mergeOptions(nil)
	assert.Equal(t, ":9100", opts.Addr)
	assert.Equal(t, "/metrics", opts.Path)
	assert.Equal(t, 5*time.Second, opts.ShutdownTimeout)
	assert.NotNil(t, opts.Logger)

	logger := zap.NewNop()
	opts = mergeOptions(&PromServerOpts{Addr: ":9200", Logger: logger})
	assert.Equal(t, ":9200", opts.Addr)
	assert.Equal(t, "/metrics", opts.Path)
	assert.Same(t, logger, opts.Logger)
}

func TestObserveStatement(t *testing.T) {
	before := testutil.CollectAndCount(StatementDuration)
	ObserveStatement("test", "select", time.Now())
	assert.Equal(t, before+1, testutil.CollectAndCount(StatementDuration))
}

func TestRequests(t *testing.T) {
	c := Requests.WithLabelValues("select", "200")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(c), 0.0001)
}
