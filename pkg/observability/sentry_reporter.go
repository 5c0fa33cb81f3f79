package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryReporter sends reports to Sentry via its Hub API.
//
// Thread-safe: all methods are safe for concurrent use.
type SentryReporter struct {
	hub *sentry.Hub
}

// SentryOption configures the Sentry client during NewSentryReporter.
type SentryOption func(*sentry.ClientOptions)

// WithBeforeSend installs a BeforeSend hook, letting the caller filter or
// modify events before they are sent.
func WithBeforeSend(fn func(*sentry.Event, *sentry.EventHint) *sentry.Event) SentryOption {
	return func(opts *sentry.ClientOptions) {
		opts.BeforeSend = fn
	}
}

// WithDebug enables Sentry's own debug logging.
func WithDebug(debug bool) SentryOption {
	return func(opts *sentry.ClientOptions) {
		opts.Debug = debug
	}
}

// WithEnvironment sets the environment tag for all events.
func WithEnvironment(environment string) SentryOption {
	return func(opts *sentry.ClientOptions) {
		opts.Environment = environment
	}
}

// WithRelease sets the release tag for all events.
func WithRelease(release string) SentryOption {
	return func(opts *sentry.ClientOptions) {
		opts.Release = release
	}
}

// NewSentryReporter initializes the Sentry SDK and returns a reporter bound
// to its current hub. An empty dsn is allowed and disables sending, which
// is convenient in tests.
func NewSentryReporter(dsn string, opts ...SentryOption) (*SentryReporter, error) {
	clientOpts := sentry.ClientOptions{Dsn: dsn}
	for _, opt := range opts {
		opt(&clientOpts)
	}

	if err := sentry.Init(clientOpts); err != nil {
		return nil, fmt.Errorf("initialize sentry: %w", err)
	}

	return &SentryReporter{hub: sentry.CurrentHub()}, nil
}

func scopeFromContext(scope *sentry.Scope, kind ErrorKind, ctx *ErrorContext) {
	scope.SetTag("kind", string(kind))
	scope.SetTag("bundle_id", ctx.BundleId)
	if ctx.FnId != "" {
		scope.SetTag("fn_id", ctx.FnId)
	}
	if ctx.BatchId != 0 {
		scope.SetExtra("batch_id", ctx.BatchId)
	}
	for key, value := range ctx.Tags {
		scope.SetTag(key, value)
	}
	for key, value := range ctx.Extra {
		scope.SetExtra(key, value)
	}
	for _, bc := range ctx.Breadcrumbs {
		scope.AddBreadcrumb(&sentry.Breadcrumb{
			Type:      bc.Type,
			Category:  bc.Category,
			Message:   bc.Message,
			Level:     sentry.Level(bc.Level),
			Timestamp: bc.Timestamp,
			Data:      bc.Data,
		}, 100)
	}
}

// ReportError sends a CaughtError to Sentry as a captured exception, scoped
// to its ErrorContext.
func (r *SentryReporter) ReportError(err *CaughtError, ctx *ErrorContext) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scopeFromContext(scope, err.Kind, ctx)
		scope.SetLevel(sentry.LevelError)
		r.hub.CaptureException(err)
	})
}

// ReportFatal sends a FatalError to Sentry at fatal level.
func (r *SentryReporter) ReportFatal(err *FatalError, ctx *ErrorContext) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scopeFromContext(scope, err.Kind, ctx)
		scope.SetLevel(sentry.LevelFatal)
		r.hub.CaptureException(err)
	})
}

// Flush blocks until pending events are sent or timeout elapses.
func (r *SentryReporter) Flush(timeout time.Duration) error {
	sentry.Flush(timeout)
	return nil
}
