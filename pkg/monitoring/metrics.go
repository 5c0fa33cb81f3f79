// Package monitoring provides pluggable metrics collection for the bridge,
// receiver, and engine.
//
// Monitoring is entirely optional and has zero overhead when disabled: the
// default implementation is NoOpMetrics, which performs no operations and
// makes no allocations.
//
// To enable monitoring, create a Metrics implementation (e.g.
// PrometheusMetrics) and pass it to the Engine:
//
//	metrics := monitoring.NewPrometheusMetrics(prometheus.DefaultRegisterer)
//	eng := engine.New(script, engine.WithMetricsSink(metrics))
//
// SetGlobalMetrics/GlobalMetrics hold a process-wide instance for callers
// that want one; the Engine does not read it.
package monitoring

import (
	"sync"
	"time"
)

// Metrics defines the interface for collecting metrics from the bridge,
// receiver, and engine. Implementations must be thread-safe and must not
// fail: metric recording never blocks or errors the call it instruments.
type Metrics interface {
	// RecordBatchApply records a batch's op count, duration, and outcome
	// counts once ApplyBatch finishes.
	RecordBatchApply(duration time.Duration, total, applied, skipped, failed int)

	// RecordOp increments the per-tag op counter. kind is one of the
	// proto.Tag values ("CREATE", "UPDATE", ...).
	RecordOp(kind string)

	// RecordBackpressure records a batch that was truncated for exceeding
	// maxBatchSize.
	RecordBackpressure(skipped int)

	// RecordCallbackInvoke records a callback proxy invocation and whether
	// it resolved, rejected, or hit an unknown fnId.
	RecordCallbackInvoke(outcome string)

	// RecordPromiseSettlement records how a pending promise settled:
	// "resolved", "rejected", or "timeout".
	RecordPromiseSettlement(outcome string)

	// RecordTreeSize records the node count after a batch is applied, so
	// tree growth over time is visible.
	RecordTreeSize(nodeCount int)
}

// NoOpMetrics is a zero-overhead implementation that does nothing. It is
// the default when monitoring is not enabled.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordBatchApply(duration time.Duration, total, applied, skipped, failed int) {}
func (NoOpMetrics) RecordOp(kind string)                                                         {}
func (NoOpMetrics) RecordBackpressure(skipped int)                                                {}
func (NoOpMetrics) RecordCallbackInvoke(outcome string)                                           {}
func (NoOpMetrics) RecordPromiseSettlement(outcome string)                                        {}
func (NoOpMetrics) RecordTreeSize(nodeCount int)                                                  {}

var (
	globalMetricsMu sync.RWMutex
	globalMetrics   Metrics = NoOpMetrics{}
)

// SetGlobalMetrics installs the global metrics implementation. Passing nil
// resets to NoOpMetrics rather than leaving the global nil, so callers
// never need a nil check.
//
// Thread-safe: safe to call concurrently.
func SetGlobalMetrics(m Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()

	if m == nil {
		globalMetrics = NoOpMetrics{}
		return
	}
	globalMetrics = m
}

// GlobalMetrics returns the current global metrics implementation. Never
// returns nil.
//
// Thread-safe: safe to call concurrently.
func GlobalMetrics() Metrics {
	globalMetricsMu.RLock()
	defer globalMetricsMu.RUnlock()
	return globalMetrics
}
