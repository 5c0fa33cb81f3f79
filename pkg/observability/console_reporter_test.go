package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsoleReporter_ReportErrorDoesNotPanic(t *testing.T) {
	r := NewConsoleReporter(true)
	ctx := &ErrorContext{BundleId: "demo", StackTrace: []byte("goroutine 1 [running]:")}
	assert.NotPanics(t, func() {
		r.ReportError(&CaughtError{Kind: KindBackpressure, Message: "over limit"}, ctx)
	})
}

func TestConsoleReporter_ReportFatalDoesNotPanic(t *testing.T) {
	r := NewConsoleReporter(false)
	ctx := &ErrorContext{BundleId: "demo"}
	assert.NotPanics(t, func() {
		r.ReportFatal(&FatalError{Kind: KindLoadTimeout, Message: "timed out"}, ctx)
	})
}

func TestConsoleReporter_FlushIsNoop(t *testing.T) {
	r := NewConsoleReporter(false)
	assert.NoError(t, r.Flush(time.Second))
}
