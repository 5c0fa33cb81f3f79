package observability

import (
	"log"
	"sync"
	"time"
)

// ConsoleReporter logs reports to the standard logger. It's meant for
// development: immediate feedback with no external dependency.
//
// Thread-safe: all methods are safe for concurrent use.
type ConsoleReporter struct {
	// verbose controls whether stack traces are included in output.
	verbose bool

	mu sync.Mutex
}

// NewConsoleReporter creates a console reporter. When verbose is true,
// stack traces are logged alongside the error message.
func NewConsoleReporter(verbose bool) *ConsoleReporter {
	return &ConsoleReporter{verbose: verbose}
}

// ReportError logs a CaughtError with its kind and context.
func (r *ConsoleReporter) ReportError(err *CaughtError, ctx *ErrorContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Printf("[ERROR] %s (bundle=%s batch=%d): %v", err.Kind, ctx.BundleId, ctx.BatchId, err)
	r.logStack(ctx)
}

// ReportFatal logs a FatalError with its kind and context.
func (r *ConsoleReporter) ReportFatal(err *FatalError, ctx *ErrorContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Printf("[FATAL] %s (bundle=%s): %v", err.Kind, ctx.BundleId, err)
	r.logStack(ctx)
}

func (r *ConsoleReporter) logStack(ctx *ErrorContext) {
	if r.verbose && ctx != nil && len(ctx.StackTrace) > 0 {
		log.Printf("Stack trace:\n%s", ctx.StackTrace)
	}
}

// Flush is a no-op: console output is immediate.
func (r *ConsoleReporter) Flush(timeout time.Duration) error {
	return nil
}
