package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"
	"time"
)

var (
	profilingServer     *http.Server
	profilingAddr       string
	profilingMu         sync.Mutex
	profilingEnabled    atomic.Bool
	profilingServerDone chan struct{}
)

// EnableProfiling starts an HTTP server exposing Go's pprof endpoints for
// runtime profiling of a running Engine/Bridge/Receiver process.
//
// Only bind to localhost; the endpoint exposes sensitive runtime
// information and has no authentication.
//
// Endpoints are served at /debug/pprof/: index, cmdline, profile, symbol,
// trace.
func EnableProfiling(addr string) error {
	profilingMu.Lock()
	defer profilingMu.Unlock()

	if profilingEnabled.Load() {
		return errors.New("profiling already enabled")
	}
	if addr == "" {
		return errors.New("address cannot be empty")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	profilingServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	profilingAddr = addr
	profilingServerDone = make(chan struct{})

	go func() {
		defer close(profilingServerDone)
		if err := profilingServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			profilingEnabled.Store(false)
		}
	}()

	profilingEnabled.Store(true)
	time.Sleep(50 * time.Millisecond)

	return nil
}

// StopProfiling gracefully shuts down the profiling server, blocking until
// it is fully stopped or the shutdown grace period elapses.
func StopProfiling() {
	profilingMu.Lock()
	defer profilingMu.Unlock()

	if !profilingEnabled.Load() || profilingServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := profilingServer.Shutdown(ctx); err != nil {
		_ = profilingServer.Close()
	}

	<-profilingServerDone

	profilingServer = nil
	profilingAddr = ""
	profilingEnabled.Store(false)
}

// IsProfilingEnabled reports whether the profiling server is running.
func IsProfilingEnabled() bool {
	return profilingEnabled.Load()
}

// GetProfilingAddress returns the bound profiling address, or "" if
// profiling is not enabled.
func GetProfilingAddress() string {
	profilingMu.Lock()
	defer profilingMu.Unlock()
	return profilingAddr
}
