package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements Metrics using Prometheus for collection.
// All metrics are prefixed with "rill_" to avoid naming conflicts.
//
// Metrics exposed:
//   - rill_batch_apply_duration_seconds: histogram of ApplyBatch duration
//   - rill_batch_ops_total: counter of ops processed, partitioned by tag
//   - rill_backpressure_skipped_total: counter of ops dropped to backpressure
//   - rill_callback_invokes_total: counter of callback proxy invocations by outcome
//   - rill_promise_settlements_total: counter of promise settlements by outcome
//   - rill_tree_nodes: gauge of the live node count after the last batch
//
// Thread-safe: all Prometheus collectors are thread-safe by design.
type PrometheusMetrics struct {
	batchApplyDuration prometheus.Histogram
	batchOps           *prometheus.CounterVec
	backpressure       prometheus.Counter
	callbackInvokes    *prometheus.CounterVec
	promiseSettlements *prometheus.CounterVec
	treeNodes          prometheus.Gauge
}

// NewPrometheusMetrics creates and registers a Prometheus metrics collector
// against reg. Registration failures panic: metric setup is fail-fast at
// startup, not a runtime condition to recover from.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	batchApplyDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rill_batch_apply_duration_seconds",
		Help:    "Duration of Receiver.ApplyBatch calls.",
		Buckets: prometheus.DefBuckets,
	})

	batchOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rill_batch_ops_total",
		Help: "Total operations processed, partitioned by tag.",
	}, []string{"tag"})

	backpressure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rill_backpressure_skipped_total",
		Help: "Total operations dropped because a batch exceeded maxBatchSize.",
	})

	callbackInvokes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rill_callback_invokes_total",
		Help: "Total callback proxy invocations, partitioned by outcome.",
	}, []string{"outcome"})

	promiseSettlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rill_promise_settlements_total",
		Help: "Total promise settlements, partitioned by outcome.",
	}, []string{"outcome"})

	treeNodes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rill_tree_nodes",
		Help: "Live node count after the most recently applied batch.",
	})

	reg.MustRegister(batchApplyDuration, batchOps, backpressure, callbackInvokes, promiseSettlements, treeNodes)

	return &PrometheusMetrics{
		batchApplyDuration: batchApplyDuration,
		batchOps:           batchOps,
		backpressure:       backpressure,
		callbackInvokes:    callbackInvokes,
		promiseSettlements: promiseSettlements,
		treeNodes:          treeNodes,
	}
}

// RecordBatchApply observes the batch's duration only; the total,
// applied, skipped, and failed counts are not recorded. Per-tag op
// counts arrive separately through RecordOp.
func (pm *PrometheusMetrics) RecordBatchApply(duration time.Duration, total, applied, skipped, failed int) {
	pm.batchApplyDuration.Observe(duration.Seconds())
}

// RecordOp increments the counter for the given op tag.
func (pm *PrometheusMetrics) RecordOp(kind string) {
	pm.batchOps.WithLabelValues(kind).Inc()
}

// RecordBackpressure adds skipped to the backpressure counter.
func (pm *PrometheusMetrics) RecordBackpressure(skipped int) {
	pm.backpressure.Add(float64(skipped))
}

// RecordCallbackInvoke increments the callback invoke counter for outcome.
func (pm *PrometheusMetrics) RecordCallbackInvoke(outcome string) {
	pm.callbackInvokes.WithLabelValues(outcome).Inc()
}

// RecordPromiseSettlement increments the promise settlement counter for
// outcome.
func (pm *PrometheusMetrics) RecordPromiseSettlement(outcome string) {
	pm.promiseSettlements.WithLabelValues(outcome).Inc()
}

// RecordTreeSize sets the tree node gauge to nodeCount.
func (pm *PrometheusMetrics) RecordTreeSize(nodeCount int) {
	pm.treeNodes.Set(float64(nodeCount))
}
