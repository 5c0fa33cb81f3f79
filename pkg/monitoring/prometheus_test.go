package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_ImplementsInterface(t *testing.T) {
	var _ Metrics = (*PrometheusMetrics)(nil)
}

func TestNewPrometheusMetrics_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(reg)
	require.NotNil(t, metrics)

	metrics.RecordBatchApply(5*time.Millisecond, 10, 9, 1, 0)
	metrics.RecordOp("CREATE")
	metrics.RecordBackpressure(3)
	metrics.RecordCallbackInvoke("resolved")
	metrics.RecordPromiseSettlement("timeout")
	metrics.RecordTreeSize(7)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, len(families))
	for i, f := range families {
		names[i] = f.GetName()
	}

	for _, expect := range []string{
		"rill_batch_apply_duration_seconds",
		"rill_batch_ops_total",
		"rill_backpressure_skipped_total",
		"rill_callback_invokes_total",
		"rill_promise_settlements_total",
		"rill_tree_nodes",
	} {
		assert.Contains(t, names, expect)
	}
}

func TestNewPrometheusMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)
	assert.Panics(t, func() {
		NewPrometheusMetrics(reg)
	})
}
