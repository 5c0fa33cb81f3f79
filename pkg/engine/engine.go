package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/GoAskAway/rill-sub003/pkg/bridge"
	"github.com/GoAskAway/rill-sub003/pkg/codec"
	"github.com/GoAskAway/rill-sub003/pkg/monitoring"
	"github.com/GoAskAway/rill-sub003/pkg/observability"
	"github.com/GoAskAway/rill-sub003/pkg/proto"
	"github.com/GoAskAway/rill-sub003/pkg/receiver"
	"github.com/GoAskAway/rill-sub003/pkg/registry"
)

// LifecycleEvent names the Engine-level lifecycle events a Host can
// observe: load, error, fatalError, destroy, operation, message.
type LifecycleEvent string

const (
	EventLoad       LifecycleEvent = "load"
	EventError      LifecycleEvent = "error"
	EventFatalError LifecycleEvent = "fatalError"
	EventDestroy    LifecycleEvent = "destroy"
	EventOperation  LifecycleEvent = "operation"
	EventMessage    LifecycleEvent = "message"
)

// HealthStats summarizes the Engine's current resource footprint, for an
// operator asking "is this Guest behaving."
type HealthStats struct {
	Loaded         bool
	Destroyed      bool
	NodeCount      int
	RootCount      int
	GuestCallbacks registry.DebugInfo
	HostCallbacks  registry.DebugInfo
	PendingPromise int
}

// hostEventSub is one __useHostEvent subscription. id lets unsub remove
// exactly this registration even if the same name has several.
type hostEventSub struct {
	id int
	cb func(any)
}

// Engine is the Host-side shell: it owns a ScriptContext, a Bridge, and
// a Receiver, injects the Host-to-Guest runtime globals, and enforces
// the hard timeout / fatal-error policy around bundle load.
//
// Thread-safe: exported methods may be called concurrently.
type Engine struct {
	cfg    Config
	script ScriptContext

	Bridge   *bridge.Bridge
	Receiver *receiver.Receiver

	mu        sync.Mutex
	loaded    bool
	destroyed bool
	loadTimer *time.Timer

	backpressureThrottle *bridge.Throttle

	hostEventSubs map[string][]hostEventSub
	subIdSeq      int
	lastConfig    any

	// OnLifecycleEvent, if set, fires for every lifecycle event with an
	// event-specific payload (nil for load/destroy, an error for
	// error/fatalError, an ApplyStats for operation, a HostMessage-shaped
	// value for message).
	OnLifecycleEvent func(event LifecycleEvent, payload any)
}

// New constructs an Engine around script, wiring a fresh Bridge and
// Receiver and applying opts.
func New(script ScriptContext, opts ...Option) *Engine {
	cfg := resolveConfig(opts)

	b := bridge.New(codec.NewDefault())
	b.Logger = cfg.Logger

	r := receiver.New(cfg.MaxBatchSize)
	r.Logger = cfg.Logger

	throttle, _ := bridge.NewThrottle(backpressureThrottleInterval)
	e := &Engine{
		cfg:                  cfg,
		script:               script,
		Bridge:               b,
		Receiver:             r,
		backpressureThrottle: throttle,
		hostEventSubs:        make(map[string][]hostEventSub),
	}

	// Subtree-scoped callback release: the Bridge reports which node
	// each freshly-minted fnId belongs to as it encodes a batch; the
	// Receiver remembers that association and releases it back through
	// the Bridge once the owning node is structurally removed. Without
	// this wiring, abandoned callbacks accumulate in GuestCallbacks for
	// the Engine's entire lifetime.
	b.OnFnIdsRegistered = func(batchId proto.BatchId, perNode []bridge.NodeFnIds) {
		for _, nf := range perNode {
			r.RecordFnIds(nf.NodeId, nf.FnIds)
		}
	}
	r.OnReleaseCallback = func(fnId registry.FnId) {
		b.ReleaseCallback(fnId)
	}

	b.SendToHost = func(batch proto.OperationBatch) {
		stats, err := r.ApplyBatch(batch)
		if err != nil {
			e.reportError(observability.KindMalformedOp, "apply batch", err)
			return
		}
		cfg.MetricsSink.RecordBatchApply(time.Duration(stats.DurationMs*float64(time.Millisecond)), stats.Total, stats.Applied, stats.Skipped, stats.Failed)
		for tag, n := range stats.OpCounts {
			for i := 0; i < n; i++ {
				cfg.MetricsSink.RecordOp(string(tag))
			}
		}
		e.emit(EventOperation, stats)
	}

	r.OnBackpressure = func(ev receiver.BackpressureEvent) {
		cfg.MetricsSink.RecordBackpressure(ev.Skipped)
		if e.backpressureThrottle != nil && !e.backpressureThrottle.ShouldSend("guest", "RECEIVER_BACKPRESSURE") {
			return
		}
		_ = b.ToGuest(bridge.HostEvent{
			EventName: "RECEIVER_BACKPRESSURE",
			Payload: map[string]any{
				"batchId": ev.BatchId,
				"skipped": ev.Skipped,
				"applied": ev.Applied,
				"total":   ev.Total,
			},
		})
	}

	return e
}

func (e *Engine) emit(event LifecycleEvent, payload any) {
	if e.OnLifecycleEvent != nil {
		e.OnLifecycleEvent(event, payload)
	}
}

func (e *Engine) reportError(kind observability.ErrorKind, message string, cause error) {
	e.emit(EventError, cause)
	if e.cfg.Reporter == nil {
		return
	}
	e.cfg.Reporter.ReportError(&observability.CaughtError{Kind: kind, Message: message, Cause: cause}, &observability.ErrorContext{Timestamp: time.Now()})
}

func (e *Engine) reportFatal(kind observability.ErrorKind, message string, cause error) {
	e.emit(EventFatalError, cause)
	if e.cfg.Reporter != nil {
		e.cfg.Reporter.ReportFatal(&observability.FatalError{Kind: kind, Message: message, Cause: cause}, &observability.ErrorContext{Timestamp: time.Now()})
	}
}

// addHostEventSub registers cb under name and returns an idempotent
// unsubscribe closure. Subscriptions are keyed by an ever-increasing id
// rather than slice position, so unsub still finds the right entry after
// siblings have come and gone.
func (e *Engine) addHostEventSub(name string, cb func(any)) func() {
	e.mu.Lock()
	e.subIdSeq++
	id := e.subIdSeq
	e.hostEventSubs[name] = append(e.hostEventSubs[name], hostEventSub{id: id, cb: cb})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.hostEventSubs[name]
		for i, s := range subs {
			if s.id == id {
				e.hostEventSubs[name] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// dispatchHostEvent runs every subscriber registered for name. It is
// called after a CONFIG_UPDATE or HOST_EVENT message has gone out over
// the Bridge, standing in for the dispatch a real Guest runtime would
// perform on message receipt.
func (e *Engine) dispatchHostEvent(name string, payload any) {
	e.mu.Lock()
	subs := append([]hostEventSub(nil), e.hostEventSubs[name]...)
	e.mu.Unlock()
	for _, s := range subs {
		s.cb(payload)
	}
}

// injectGlobals installs the Host-to-Guest runtime API into the script
// context before any bundle code runs: event send/receive, operation
// send, config snapshot, the callback registry trio and its backing map,
// and a console shim.
func (e *Engine) injectGlobals() {
	e.script.SetGlobal("__sendEventToHost", func(name string, payload any) {
		_ = e.Bridge.ToGuest(bridge.HostEvent{EventName: name, Payload: payload})
	})
	e.script.SetGlobal("__sendOperation", func(op proto.Op) {
		_ = e.Bridge.ToHost(proto.OperationBatch{Version: proto.WireVersion, Operations: []proto.Op{op}})
	})
	e.script.SetGlobal("__useHostEvent", func(name string, cb func(any)) func() {
		return e.addHostEventSub(name, cb)
	})
	e.script.SetGlobal("__handleHostEvent", func(name string, payload any) {
		e.dispatchHostEvent(name, payload)
	})
	e.script.SetGlobal("__getConfig", func() any {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.lastConfig
	})
	e.script.SetGlobal("__registerCallback", func(fn registry.Fn) registry.FnId {
		return e.Bridge.GuestCallbacks.Register(fn)
	})
	e.script.SetGlobal("__invokeCallback", func(id registry.FnId, args []any) any {
		return e.Bridge.GuestCallbacks.Invoke(id, args)
	})
	e.script.SetGlobal("__removeCallback", func(id registry.FnId) {
		e.Bridge.ReleaseCallback(id)
	})
	e.script.SetGlobal("__callbacks", e.Bridge.GuestCallbacks)
	e.script.SetGlobal("console", map[string]any{
		"log": func(args ...any) { log.Println(args...) },
	})
}

// LoadBundle runs the helper-install step, then the bundle itself,
// enforcing the Engine's hard load timeout. The Engine awaits the
// helper-install eval before evaluating the bundle: for an async-only
// sandbox, globals set during that eval are not guaranteed visible to a
// later synchronous eval otherwise.
func (e *Engine) LoadBundle(ctx context.Context, helperInstallCode, bundleCode string) (err error) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return errors.New("engine: destroyed")
	}
	e.mu.Unlock()

	e.injectGlobals()

	loadCtx, cancel := context.WithTimeout(ctx, e.cfg.LoadTimeout)
	defer cancel()

	e.mu.Lock()
	e.loadTimer = time.AfterFunc(e.cfg.LoadTimeout, func() {
		e.reportFatal(observability.KindLoadTimeout, "bundle load exceeded hard timeout", loadCtx.Err())
		e.ForceDestroy()
	})
	e.mu.Unlock()
	// A load that failed because the deadline passed leaves the load timer
	// running, so the timeout still reports and force-destroys the Engine;
	// any other failed load, already reported fatal, force-destroys here.
	defer func() {
		if err != nil && errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			return
		}
		e.stopLoadTimer()
		if err != nil {
			e.ForceDestroy()
		}
	}()

	if _, err := e.script.EvalAsync(loadCtx, helperInstallCode); err != nil {
		e.reportFatal(observability.KindSandboxEvalException, "helper install failed", err)
		return fmt.Errorf("engine: helper install: %w", err)
	}

	if _, err := e.script.EvalAsync(loadCtx, bundleCode); err != nil {
		e.reportFatal(observability.KindSandboxEvalException, "bundle eval failed", err)
		return fmt.Errorf("engine: bundle eval: %w", err)
	}

	e.mu.Lock()
	e.loaded = true
	e.mu.Unlock()
	e.emit(EventLoad, nil)
	return nil
}

func (e *Engine) stopLoadTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadTimer != nil {
		e.loadTimer.Stop()
		e.loadTimer = nil
	}
}

// SendEvent delivers a host-originated event to the Guest, then runs any
// __useHostEvent subscribers registered for name.
func (e *Engine) SendEvent(name string, payload any) error {
	e.emit(EventMessage, payload)
	if err := e.Bridge.ToGuest(bridge.HostEvent{EventName: name, Payload: payload}); err != nil {
		return err
	}
	e.dispatchHostEvent(name, payload)
	return nil
}

// UpdateConfig pushes a new configuration value down to the Guest,
// records it for __getConfig, and notifies CONFIG_UPDATE subscribers.
func (e *Engine) UpdateConfig(config any) error {
	if err := e.Bridge.ToGuest(bridge.ConfigUpdate{Config: config}); err != nil {
		return err
	}
	e.mu.Lock()
	e.lastConfig = config
	e.mu.Unlock()
	e.dispatchHostEvent("CONFIG_UPDATE", config)
	return nil
}

// Health reports the Engine's current resource footprint.
func (e *Engine) Health() HealthStats {
	e.mu.Lock()
	loaded, destroyed := e.loaded, e.destroyed
	e.mu.Unlock()

	info := e.Receiver.GetDebugInfo()
	return HealthStats{
		Loaded:         loaded,
		Destroyed:      destroyed,
		NodeCount:      info.NodeCount,
		RootCount:      info.RootCount,
		GuestCallbacks: e.Bridge.GuestCallbacks.DebugInfo(),
		HostCallbacks:  e.Bridge.HostCallbacks.DebugInfo(),
		PendingPromise: e.Bridge.Promises.Size(),
	}
}

// Destroy tears the Engine down cleanly: clears timers, sends DESTROY to
// the Guest, clears the Bridge's registries, and disposes the script
// context.
func (e *Engine) Destroy() error {
	return e.destroy(true)
}

// ForceDestroy tears the Engine down without attempting to notify the
// Guest first, for use after a fatal condition has already made the
// Guest channel untrustworthy. Idempotent: clears timers before resource
// disposal, and tolerates a panicking or erroring Dispose.
func (e *Engine) ForceDestroy() error {
	return e.destroy(false)
}

func (e *Engine) destroy(notifyGuest bool) (err error) {
	e.stopLoadTimer()

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	e.mu.Unlock()

	if notifyGuest {
		_ = e.Bridge.ToGuest(bridge.Destroy{})
	}

	e.Bridge.Destroy()
	e.Receiver.Clear()
	e.Receiver.Stop()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("engine: script context disposal panicked: %v", rec)
		}
	}()
	if disposeErr := e.script.Dispose(); disposeErr != nil {
		err = disposeErr
	}

	e.emit(EventDestroy, nil)
	return err
}
