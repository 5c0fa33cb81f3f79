package engine

import (
	"context"
	"fmt"
	"sync"
)

// Program is a Guest "bundle" under NativeContext: a Go closure that
// receives the context so it can read the injected globals and call
// back into them, standing in for a block of Guest-authored source that
// a real sandbox would eval.
type Program func(ctx *NativeContext) (any, error)

// NativeContext is a trivial in-process ScriptContext: Eval/EvalAsync
// look `code` up in a table of pre-registered Programs instead of
// parsing and running real source, since embedding a JS engine is out
// of scope for this module. This mirrors how a test harness stands in
// for a real runtime during unit tests.
//
// Thread-safe: all methods are safe for concurrent use.
type NativeContext struct {
	mu       sync.Mutex
	globals  map[string]any
	programs map[string]Program
	disposed bool
}

// NewNativeContext returns an empty context with no registered programs
// and no globals.
func NewNativeContext() *NativeContext {
	return &NativeContext{
		globals:  make(map[string]any),
		programs: make(map[string]Program),
	}
}

// RegisterProgram associates name with a Program, so a later Eval(name)
// or EvalAsync(ctx, name) runs it.
func (n *NativeContext) RegisterProgram(name string, p Program) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.programs[name] = p
}

// Eval runs the program registered under code.
func (n *NativeContext) Eval(code string) (any, error) {
	n.mu.Lock()
	p, ok := n.programs[code]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("engine: no program registered as %q", code)
	}
	return p(n)
}

// EvalAsync runs the program registered under code, honoring ctx
// cancellation while it runs.
func (n *NativeContext) EvalAsync(ctx context.Context, code string) (any, error) {
	type result struct {
		val any
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := n.Eval(code)
		done <- result{val, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetGlobal installs value under name.
func (n *NativeContext) SetGlobal(name string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.globals[name] = value
}

// GetGlobal reads the global under name.
func (n *NativeContext) GetGlobal(name string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.globals[name]
	return v, ok
}

// Dispose marks the context disposed. Idempotent.
func (n *NativeContext) Dispose() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disposed = true
	return nil
}

// Disposed reports whether Dispose has been called, for tests asserting
// forceDestroy actually tore the sandbox down.
func (n *NativeContext) Disposed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disposed
}
