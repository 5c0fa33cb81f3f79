package bridge

import (
	"fmt"
	"log"
	"time"

	"github.com/GoAskAway/rill-sub003/pkg/codec"
	"github.com/GoAskAway/rill-sub003/pkg/promise"
	"github.com/GoAskAway/rill-sub003/pkg/proto"
	"github.com/GoAskAway/rill-sub003/pkg/registry"
)

// Bridge is the only way the two sides talk. It owns the shared codec,
// one CallbackRegistry per side, and the one PromiseManager both sides'
// promise ids are drawn from.
//
// Thread Safety:
//
//	Bridge itself holds no mutable state beyond its collaborators, which
//	are each independently safe for concurrent use. ToHost/ToGuest may be
//	called concurrently with each other.
type Bridge struct {
	Codec *codec.Codec

	GuestCallbacks *registry.CallbackRegistry
	HostCallbacks  *registry.CallbackRegistry
	Promises       *promise.Manager

	// SendToHost delivers a fully decoded batch (function envelopes
	// already resolved into Host-side callable proxies) to the Host
	// receiver. Required for ToHost to have any effect.
	SendToHost func(batch proto.OperationBatch)

	// SendToGuest delivers a fully decoded HostMessage to the Guest
	// dispatcher. Required for ToGuest to have any effect.
	SendToGuest func(msg HostMessage) error

	// CallGuestFunction sends a CALL_FUNCTION message to the Guest when
	// a Host-held proxy representing a Guest function is invoked. If
	// nil, invoking such a proxy is a silent no-op.
	CallGuestFunction func(fnId registry.FnId, args []any)

	// CallHostFunction is the mirror of CallGuestFunction for proxies
	// representing Host functions invoked from Guest code.
	CallHostFunction func(fnId registry.FnId, args []any)

	// ReleaseRemote is consulted by ReleaseCallback when fnId names
	// neither a Guest nor a Host registry entry in this process: the
	// extension point for a Guest sandbox that does not share memory
	// with this process.
	ReleaseRemote func(fnId registry.FnId)

	// OnFnIdsRegistered, if set, fires after ToHost encodes a batch with
	// the ids freshly registered in GuestCallbacks during that encode,
	// grouped by the node each CREATE/UPDATE op that triggered a
	// registration targeted, so a Receiver can associate them with the
	// node(s) just created for precise release later.
	OnFnIdsRegistered func(batchId proto.BatchId, perNode []NodeFnIds)

	// OnMetric is the instrumentation hook: invoked once per successful
	// ToHost ("toHost") and once per ToGuest ("toGuest") with the call's
	// duration and arbitrary extra fields. Bridge does not know what a metric backend
	// is; pkg/engine leaves this unset.
	OnMetric func(name string, duration time.Duration, extra map[string]any)

	Logger func(format string, args ...any)
}

// New returns a Bridge wired with fresh registries and a fresh promise
// manager. Callers typically still need to set SendToHost/SendToGuest
// and the Call*Function hooks before use.
func New(c *codec.Codec) *Bridge {
	return &Bridge{
		Codec:          c,
		GuestCallbacks: registry.New(),
		HostCallbacks:  registry.New(),
		Promises:       promise.New(),
	}
}

func (b *Bridge) logf(format string, args ...any) {
	if b.Logger != nil {
		b.Logger(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (b *Bridge) emitMetric(name string, start time.Time, extra map[string]any) {
	if b.OnMetric != nil {
		b.OnMetric(name, time.Since(start), extra)
	}
}

// trackingRegisterer wraps a registry.Registerer and records every id it
// mints during one encode call, so EncodeBatchWithTracking can report
// which callbacks a batch freshly registered.
type trackingRegisterer struct {
	inner      registry.Registerer
	registered []registry.FnId
}

func (t *trackingRegisterer) Register(fn registry.Fn) registry.FnId {
	id := t.inner.Register(fn)
	t.registered = append(t.registered, id)
	return id
}

// NodeFnIds pairs a node id with the Guest fnIds freshly registered
// while encoding the CREATE/UPDATE op that targeted it, so a Receiver
// can release exactly those ids when that node is torn down.
type NodeFnIds struct {
	NodeId proto.NodeId
	FnIds  []registry.FnId
}

// opTargetId reports the node id a CREATE/UPDATE op targets. Every
// other op carries only plain ids, never a fresh function registration.
func opTargetId(op proto.Op) (proto.NodeId, bool) {
	switch o := op.(type) {
	case proto.Create:
		return o.Id, true
	case proto.Update:
		return o.Id, true
	default:
		return 0, false
	}
}

// EncodeBatchWithTracking runs the same encode-then-decode pipeline as
// ToHost, additionally returning the Guest fnIds freshly registered
// while encoding, grouped by the node each op targeted, so a caller
// (typically a Receiver handling structural REMOVE/DELETE) can release
// exactly those ids when the node that carried them is torn down,
// without re-scanning decoded props.
func (b *Bridge) EncodeBatchWithTracking(batch proto.OperationBatch) (proto.OperationBatch, []NodeFnIds, error) {
	if err := batch.Validate(); err != nil {
		return proto.OperationBatch{}, nil, err
	}

	tracker := &trackingRegisterer{inner: b.GuestCallbacks}
	enc := codec.NewEncodeContext(b.Codec, tracker, b.Promises)
	enc.Logger = b.Logger

	hostEnc := codec.NewEncodeContext(b.Codec, b.HostCallbacks, b.Promises)
	hostEnc.Logger = b.Logger

	dec := codec.NewDecodeContext(b.Codec, b.HostCallbacks, b.Promises)
	dec.Logger = b.Logger
	dec.CallRemoteFunction = b.CallGuestFunction
	dec.EncodeArg = hostEnc.Encode

	ops := make([]proto.Op, len(batch.Operations))
	var perNode []NodeFnIds
	for i, op := range batch.Operations {
		before := len(tracker.registered)
		transformed, err := transformOpProps(op, enc.Encode, dec.Decode)
		if err != nil {
			return proto.OperationBatch{}, nil, fmt.Errorf("bridge: op %d: %w", i, err)
		}
		ops[i] = transformed

		if fresh := tracker.registered[before:]; len(fresh) > 0 {
			if nodeId, ok := opTargetId(op); ok {
				ids := append([]registry.FnId(nil), fresh...)
				perNode = append(perNode, NodeFnIds{NodeId: nodeId, FnIds: ids})
			}
		}
	}

	final := proto.OperationBatch{Version: batch.Version, BatchId: batch.BatchId, Operations: ops}
	return final, perNode, nil
}

// ToHost encodes batch (including nested props) with the Guest-side
// registries, decodes the result with the Host-side registries so
// function/promise envelopes become Host-native proxies, and hands the
// result to SendToHost. Returns synchronously.
func (b *Bridge) ToHost(batch proto.OperationBatch) error {
	start := time.Now()
	final, perNode, err := b.EncodeBatchWithTracking(batch)
	if err != nil {
		return err
	}
	if b.OnFnIdsRegistered != nil && len(perNode) > 0 {
		b.OnFnIdsRegistered(batch.BatchId, perNode)
	}
	if b.SendToHost != nil {
		b.SendToHost(final)
	}
	b.emitMetric("toHost", start, map[string]any{"batchId": batch.BatchId, "ops": len(batch.Operations)})
	return nil
}

// ToGuest encodes msg with the Host-side registries, decodes it with
// the Guest-side registries, and delivers it via SendToGuest. Returns
// after the message has been accepted by SendToGuest.
func (b *Bridge) ToGuest(msg HostMessage) error {
	start := time.Now()

	enc := codec.NewEncodeContext(b.Codec, b.HostCallbacks, b.Promises)
	enc.Logger = b.Logger

	guestEnc := codec.NewEncodeContext(b.Codec, b.GuestCallbacks, b.Promises)
	guestEnc.Logger = b.Logger

	dec := codec.NewDecodeContext(b.Codec, b.GuestCallbacks, b.Promises)
	dec.Logger = b.Logger
	dec.CallRemoteFunction = b.CallHostFunction
	dec.EncodeArg = guestEnc.Encode

	transformed, err := transformMessage(msg, enc.Encode, dec.Decode)
	if err != nil {
		return fmt.Errorf("bridge: toGuest: %w", err)
	}

	var sendErr error
	if b.SendToGuest != nil {
		sendErr = b.SendToGuest(transformed)
	}
	b.emitMetric("toGuest", start, map[string]any{"type": string(msg.Type())})
	return sendErr
}

// ReleaseCallback releases fnId in whichever in-process registry holds
// it. If neither registry has it, the release is routed to a Guest that
// does not share memory with this process via ReleaseRemote.
func (b *Bridge) ReleaseCallback(fnId registry.FnId) {
	if b.GuestCallbacks.Has(fnId) {
		b.GuestCallbacks.Release(fnId)
		return
	}
	if b.HostCallbacks.Has(fnId) {
		b.HostCallbacks.Release(fnId)
		return
	}
	if b.ReleaseRemote != nil {
		b.ReleaseRemote(fnId)
		return
	}
	b.logf("bridge: release of unknown callback %s", fnId)
}

// Destroy clears both registries and the promise manager.
func (b *Bridge) Destroy() {
	b.GuestCallbacks.Clear()
	b.HostCallbacks.Clear()
	b.Promises.Clear()
}

func transformProps(props map[string]any, encode func(any) (any, error), decode func(any) (any, error)) (map[string]any, error) {
	if props == nil {
		return nil, nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		encoded, err := encode(v)
		if err != nil {
			return nil, fmt.Errorf("prop %q: encode: %w", k, err)
		}
		decoded, err := decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("prop %q: decode: %w", k, err)
		}
		out[k] = decoded
	}
	return out, nil
}

// transformOpProps runs any arbitrary-value prop payload an Op carries
// through the encode/decode pipeline. Only CREATE and UPDATE carry
// props; every other op's fields are plain ids, already safe to cross
// the boundary untouched.
func transformOpProps(op proto.Op, encode func(any) (any, error), decode func(any) (any, error)) (proto.Op, error) {
	switch o := op.(type) {
	case proto.Create:
		props, err := transformProps(o.Props, encode, decode)
		if err != nil {
			return nil, err
		}
		o.Props = props
		return o, nil
	case proto.Update:
		props, err := transformProps(o.Props, encode, decode)
		if err != nil {
			return nil, err
		}
		o.Props = props
		return o, nil
	default:
		return op, nil
	}
}

// transformMessage runs a HostMessage's arbitrary-value payload through
// the encode/decode pipeline.
func transformMessage(msg HostMessage, encode func(any) (any, error), decode func(any) (any, error)) (HostMessage, error) {
	switch m := msg.(type) {
	case CallFunction:
		encodedArgs := make([]any, len(m.Args))
		for i, a := range m.Args {
			encoded, err := encode(a)
			if err != nil {
				return nil, fmt.Errorf("call %s arg %d: %w", m.FnId, i, err)
			}
			decoded, err := decode(encoded)
			if err != nil {
				return nil, fmt.Errorf("call %s arg %d: %w", m.FnId, i, err)
			}
			encodedArgs[i] = decoded
		}
		m.Args = encodedArgs
		return m, nil
	case HostEvent:
		encoded, err := encode(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("host event %s payload: %w", m.EventName, err)
		}
		decoded, err := decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("host event %s payload: %w", m.EventName, err)
		}
		m.Payload = decoded
		return m, nil
	case ConfigUpdate:
		encoded, err := encode(m.Config)
		if err != nil {
			return nil, fmt.Errorf("config update: %w", err)
		}
		decoded, err := decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("config update: %w", err)
		}
		m.Config = decoded
		return m, nil
	case PromiseResolve:
		encoded, err := encode(m.Value)
		if err != nil {
			return nil, fmt.Errorf("promise %s resolve: %w", m.PromiseId, err)
		}
		decoded, err := decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("promise %s resolve: %w", m.PromiseId, err)
		}
		m.Value = decoded
		return m, nil
	case PromiseReject:
		encoded, err := encode(m.Error)
		if err != nil {
			return nil, fmt.Errorf("promise %s reject: %w", m.PromiseId, err)
		}
		decoded, err := decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("promise %s reject: %w", m.PromiseId, err)
		}
		m.Error = decoded
		return m, nil
	case Destroy:
		return m, nil
	default:
		return nil, fmt.Errorf("bridge: unknown message type %T", msg)
	}
}
