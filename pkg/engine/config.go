package engine

import (
	"time"

	"github.com/GoAskAway/rill-sub003/pkg/monitoring"
	"github.com/GoAskAway/rill-sub003/pkg/observability"
)

// defaultLoadTimeout is the hard timeout on bundle load: 5s, typical for
// a bundle doing real async setup work.
const defaultLoadTimeout = 5 * time.Second

// backpressureThrottleInterval bounds how often RECEIVER_BACKPRESSURE is
// forwarded to the Guest, so a sustained flood of oversized batches
// collapses to one notification per interval instead of one per batch.
const backpressureThrottleInterval = 250 * time.Millisecond

// Config holds the Engine's tunables. Zero value is usable: every field
// falls back to a documented default at construction.
type Config struct {
	// LoadTimeout bounds how long LoadBundle waits for the helper-install
	// and bundle evals to finish before declaring a fatal load timeout.
	LoadTimeout time.Duration

	// MaxBatchSize is forwarded to the Receiver this Engine constructs.
	MaxBatchSize int

	// Reporter receives CaughtError/FatalError reports raised while this
	// Engine runs. Nil disables reporting.
	Reporter observability.Reporter

	// MetricsSink receives the Receiver's per-batch instrumentation. Nil installs
	// monitoring.NoOpMetrics.
	MetricsSink monitoring.Metrics

	// Logger receives diagnostic lines from the Engine, Bridge, and
	// Receiver. Nil falls back to the standard logger.
	Logger func(format string, args ...any)
}

// Option configures a Config during New.
type Option func(*Config)

// WithLoadTimeout overrides the hard timeout on bundle load.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Config) { c.LoadTimeout = d }
}

// WithErrorReporter installs the observability.Reporter errors raised
// while this Engine runs are sent to.
func WithErrorReporter(r observability.Reporter) Option {
	return func(c *Config) { c.Reporter = r }
}

// WithMetricsSink installs the monitoring.Metrics instrumentation is sent
// to.
func WithMetricsSink(m monitoring.Metrics) Option {
	return func(c *Config) { c.MetricsSink = m }
}

// WithMaxBatchSize overrides the Receiver's maxBatchSize.
func WithMaxBatchSize(n int) Option {
	return func(c *Config) { c.MaxBatchSize = n }
}

// WithLogger overrides the diagnostic logger.
func WithLogger(fn func(format string, args ...any)) Option {
	return func(c *Config) { c.Logger = fn }
}

func resolveConfig(opts []Option) Config {
	cfg := Config{LoadTimeout: defaultLoadTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.MetricsSink == nil {
		cfg.MetricsSink = monitoring.NoOpMetrics{}
	}
	return cfg
}
