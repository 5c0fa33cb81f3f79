package registry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FnId is an opaque string identifying a registered closure. It is
// unique for the lifetime of the process and scoped to the
// CallbackRegistry instance that issued it: ids from a Guest-side
// registry and a Host-side registry are never comparable.
type FnId string

// Fn is the shape every registered closure has on the Go side of the
// bridge: it receives the already-decoded call arguments and returns a
// value (or panics, which Invoke recovers from per the protocol's error
// policy).
type Fn func(args []any) any

// Registerer is the narrow interface the codec's encode path needs to
// mint an id for a live function. It is satisfied by *CallbackRegistry,
// and by any decorator (e.g. one that records freshly minted ids for a
// single encode call) that embeds or wraps one.
type Registerer interface {
	Register(fn Fn) FnId
}

type entry struct {
	fn       Fn
	refcount int
	created  time.Time
}

// CallbackRegistry is a refcounted table mapping FnId to live closures.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type CallbackRegistry struct {
	mu      sync.Mutex
	entries map[FnId]*entry

	// Debug controls Invoke's behavior on a panicking callback: false
	// (the default, matching production/release mode) recovers and
	// swallows the panic after logging it; true re-raises it, per the
	// protocol's debug-mode exception to "never let Guest misbehavior
	// crash the Host".
	Debug bool

	// Warnf receives non-fatal diagnostics (missing id on invoke/release,
	// a caught callback panic). Defaults to log.Printf if nil.
	Warnf func(format string, args ...any)
}

// New returns an empty registry.
func New() *CallbackRegistry {
	return &CallbackRegistry{entries: make(map[FnId]*entry)}
}

func (r *CallbackRegistry) warnf(format string, args ...any) {
	if r.Warnf != nil {
		r.Warnf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Register inserts fn under a freshly generated id with an initial
// refcount of one. Registering the same Go closure value twice yields
// two distinct ids; duplicate invocation is harmless, so deduplicating
// encode-side registrations is not worth the bookkeeping.
func (r *CallbackRegistry) Register(fn Fn) FnId {
	id := FnId(uuid.NewString())
	r.mu.Lock()
	r.entries[id] = &entry{fn: fn, refcount: 1, created: time.Now()}
	r.mu.Unlock()
	return id
}

// Retain increments id's refcount. A missing id is a no-op: the
// registry never resurrects an entry that was already released.
func (r *CallbackRegistry) Retain(id FnId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.refcount++
	}
}

// Release decrements id's refcount and drops the entry once it reaches
// zero. Releasing an id more times than it was retained, or an unknown
// id, is a no-op.
func (r *CallbackRegistry) Release(id FnId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(r.entries, id)
	}
}

// Has reports whether id currently names a live entry.
func (r *CallbackRegistry) Has(id FnId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Size returns the number of live entries.
func (r *CallbackRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear drops every entry, releasing no further resources (callers that
// need to notify the other side of mass release should do so before
// calling Clear).
func (r *CallbackRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[FnId]*entry)
}

// Invoke looks up id and calls it with args. A missing id logs a warning
// and returns nil, matching the protocol's "invoke unknown fnId" policy.
// A panicking callback is recovered, logged, and swallowed (returning
// nil) unless Debug is set, in which case the panic is re-raised to the
// caller.
func (r *CallbackRegistry) Invoke(id FnId, args []any) (result any) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		r.warnf("registry: invoke of unknown callback %s", id)
		return nil
	}

	if r.Debug {
		return e.fn(args)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.warnf("registry: callback %s panicked: %v", id, rec)
			result = nil
		}
	}()
	return e.fn(args)
}

// DebugInfo reports the entry count and the age of the oldest live
// entry, surfaced by engine.Engine.Health to spot leaks where
// entries accumulate without ever being released.
type DebugInfo struct {
	Count     int
	OldestAge time.Duration
}

// DebugInfo computes the current DebugInfo snapshot.
func (r *CallbackRegistry) DebugInfo() DebugInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := DebugInfo{Count: len(r.entries)}
	var oldest time.Time
	for _, e := range r.entries {
		if oldest.IsZero() || e.created.Before(oldest) {
			oldest = e.created
		}
	}
	if !oldest.IsZero() {
		info.OldestAge = time.Since(oldest)
	}
	return info
}

// String renders id for logging purposes.
func (id FnId) String() string {
	return fmt.Sprintf("FnId(%s)", string(id))
}
