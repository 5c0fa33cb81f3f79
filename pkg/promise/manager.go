package promise

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// PromiseId is an opaque string identifying one in-flight asynchronous
// value. Ids are monotonic within a Manager ("p_<n>") and are only
// meaningful paired with the Manager that issued them.
type PromiseId string

// Result is the settled value of a promise: exactly one of Value or Err
// is meaningful, following the fulfilled/rejected split of the wire
// protocol's PROMISE_RESOLVE/PROMISE_REJECT messages.
type Result struct {
	Value any
	Err   error
}

// PendingPromise is the decode-side handle returned by CreatePending. It
// settles exactly once, either via Settle or on timeout.
type PendingPromise struct {
	id PromiseId
	ch chan Result
}

// Id returns the id this pending promise was created for.
func (p *PendingPromise) Id() PromiseId { return p.id }

// Wait blocks until the promise settles or ctx is done. A ctx
// cancellation does not settle the promise itself; it only stops this
// particular caller from waiting on it.
func (p *PendingPromise) Wait(ctx context.Context) (Result, error) {
	select {
	case result := <-p.ch:
		return result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Chan exposes the underlying settlement channel for callers that want
// to select over it alongside other events.
func (p *PendingPromise) Chan() <-chan Result { return p.ch }

type pendingEntry struct {
	ch    chan Result
	timer *time.Timer
}

// Manager owns one side's table of in-flight promise ids.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	pending map[PromiseId]*pendingEntry
	nextId  uint64

	// DefaultTimeout bounds how long a CreatePending entry waits for
	// Settle before it rejects itself with a timeout error. Zero
	// disables the timeout.
	DefaultTimeout time.Duration

	// OnSettle fires when a Register'd source channel produces its
	// result, so the owning side can encode and send a
	// PROMISE_RESOLVE/PROMISE_REJECT message to the other side.
	OnSettle func(id PromiseId, result Result)

	// Warnf receives non-fatal diagnostics (settle of an unknown id).
	// Defaults to log.Printf if nil.
	Warnf func(format string, args ...any)
}

// New returns an empty Manager with no default timeout.
func New() *Manager {
	return &Manager{pending: make(map[PromiseId]*pendingEntry)}
}

func (m *Manager) warnf(format string, args ...any) {
	if m.Warnf != nil {
		m.Warnf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (m *Manager) nextPromiseId() PromiseId {
	m.mu.Lock()
	m.nextId++
	n := m.nextId
	m.mu.Unlock()
	return PromiseId(fmt.Sprintf("p_%d", n))
}

// Register mints an id for a value the caller already owns as an
// in-flight operation: src receives exactly one Result when that
// operation completes. Register returns immediately with the new id;
// once src fires (or is closed without a value), OnSettle is invoked
// and the id is discarded. Register entries are not subject to
// DefaultTimeout, since the underlying operation is owned and timed by
// the caller, not by this manager.
func (m *Manager) Register(src <-chan Result) PromiseId {
	id := m.nextPromiseId()
	go func() {
		result, ok := <-src
		if !ok {
			result = Result{}
		}
		if m.OnSettle != nil {
			m.OnSettle(id, result)
		}
	}()
	return id
}

// CreatePending mints a local placeholder for a promise id that arrived
// from the other side of the bridge (a serialized promise proxy). The
// returned PendingPromise settles when Settle(id, ...) is called, or
// rejects with a timeout error after DefaultTimeout elapses.
func (m *Manager) CreatePending(id PromiseId) *PendingPromise {
	ch := make(chan Result, 1)
	entry := &pendingEntry{ch: ch}

	m.mu.Lock()
	m.pending[id] = entry
	if m.DefaultTimeout > 0 {
		entry.timer = time.AfterFunc(m.DefaultTimeout, func() { m.expire(id) })
	}
	m.mu.Unlock()

	return &PendingPromise{id: id, ch: ch}
}

// Settle fulfills or rejects the pending promise registered under id,
// clears its timeout, and drops the entry. Settling an unknown id
// (already settled, timed out, or never created) is a no-op that logs
// a warning.
func (m *Manager) Settle(id PromiseId, result Result) {
	entry := m.takePending(id)
	if entry == nil {
		m.warnf("promise: settle of unknown or already-settled id %s", id)
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.ch <- result
	close(entry.ch)
}

func (m *Manager) expire(id PromiseId) {
	entry := m.takePending(id)
	if entry == nil {
		return
	}
	ms := m.DefaultTimeout.Milliseconds()
	entry.ch <- Result{Err: fmt.Errorf("Promise %s timed out after %dms", id, ms)}
	close(entry.ch)
}

func (m *Manager) takePending(id PromiseId) *pendingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pending[id]
	if !ok {
		return nil
	}
	delete(m.pending, id)
	return entry
}

// Clear silently resolves every pending promise with a zero Result
// (avoiding a storm of timeout/rejection errors on teardown), stops all
// outstanding timers, and resets the id counter.
func (m *Manager) Clear() {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[PromiseId]*pendingEntry)
	m.nextId = 0
	m.mu.Unlock()

	for _, entry := range pending {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.ch <- Result{}
		close(entry.ch)
	}
}

// Size returns the number of pending (CreatePending-originated) entries.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
