package codec

import (
	"fmt"
	"reflect"

	"github.com/GoAskAway/rill-sub003/pkg/promise"
	"github.com/GoAskAway/rill-sub003/pkg/registry"
)

// Strategy classifies how a rule moves a value across the boundary,
// mirroring the protocol's three categories. It has no behavioral effect
// on the codec itself; it is metadata a rule carries for debugging and
// documentation.
type Strategy string

const (
	StrategyPassthrough Strategy = "passthrough"
	StrategySerialize   Strategy = "serialize"
	StrategyProxy       Strategy = "proxy"
)

// Rule is one entry in the ordered type-rule table. A rule need not
// handle both directions: a decode-only rule (like the serialized
// function envelope) always returns false from MatchEncode, and vice
// versa.
type Rule interface {
	Name() string
	Strategy() Strategy
	MatchEncode(v any) bool
	Encode(ctx *EncodeContext, v any) (any, error)
	MatchDecode(v any) bool
	Decode(ctx *DecodeContext, v any) (any, error)
}

// DefaultMaxDepth caps recursive encode/decode depth, guarding against
// pathological or adversarial Guest-supplied structures.
const DefaultMaxDepth = 50

// Codec holds the ordered rule table both directions share.
type Codec struct {
	Rules    []Rule
	MaxDepth int // 0 means DefaultMaxDepth
}

// NewDefault returns a Codec with the built-in rules in the order
// described by the protocol's type-rule table.
func NewDefault() *Codec {
	return &Codec{Rules: defaultRules()}
}

func (c *Codec) maxDepth() int {
	if c.MaxDepth > 0 {
		return c.MaxDepth
	}
	return DefaultMaxDepth
}

// EncodeContext carries per-call dependencies for one encode walk:
// the registries new function/promise proxies register into, and the
// cycle/depth bookkeeping for this walk.
type EncodeContext struct {
	Codec     *Codec
	Callbacks registry.Registerer
	Promises  *promise.Manager
	Logger    func(format string, args ...any)

	visited map[uintptr]bool
	depth   int
}

// NewEncodeContext returns a context ready for a single Encode call (or
// a sequence of them; visited/depth state resets per top-level Encode).
func NewEncodeContext(c *Codec, callbacks registry.Registerer, promises *promise.Manager) *EncodeContext {
	return &EncodeContext{Codec: c, Callbacks: callbacks, Promises: promises}
}

func (c *EncodeContext) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger(format, args...)
	}
}

// Encode walks v, applying the first matching rule. It is re-entrant:
// rules call back into it to encode nested values (slice elements, map
// values, struct fields).
func (c *EncodeContext) Encode(v any) (any, error) {
	if c.visited == nil {
		c.visited = make(map[uintptr]bool)
	}
	if c.depth >= c.Codec.maxDepth() {
		return nil, fmt.Errorf("codec: max encode depth (%d) exceeded", c.Codec.maxDepth())
	}

	if key, cyclic := cycleKey(v); cyclic {
		if c.visited[key] {
			return map[string]any{"__type": "circular"}, nil
		}
		c.visited[key] = true
		defer delete(c.visited, key)
	}

	c.depth++
	defer func() { c.depth-- }()

	for _, rule := range c.Codec.Rules {
		if rule.MatchEncode(v) {
			return rule.Encode(c, v)
		}
	}
	return nil, fmt.Errorf("codec: no rule matched value of type %T", v)
}

// cycleKey returns the reflect.Value pointer identity of v along with
// whether v is a kind capable of participating in a reference cycle
// (pointer, map, or slice: the composite Go kinds that can legitimately
// point back into themselves through shared backing storage). Value
// types (structs, arrays passed by value) cannot self-reference and are
// not tracked.
func cycleKey(v any) (uintptr, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	default:
		return 0, false
	}
}

// DecodeContext carries per-call dependencies for one decode walk: the
// registries serialized function/promise envelopes resolve against, and
// a callback for sending an invoked proxy's encoded arguments back
// across the boundary.
type DecodeContext struct {
	Codec     *Codec
	Callbacks *registry.CallbackRegistry
	Promises  *promise.Manager
	Logger    func(format string, args ...any)

	// CallRemoteFunction is invoked when a decoded function proxy is
	// called locally: it delivers the already-encoded args to the other
	// side (a CALL_FUNCTION message). Nil means invoked proxies are
	// no-ops, which is only appropriate in tests.
	CallRemoteFunction func(id registry.FnId, args []any)

	// EncodeArg encodes a single argument before a decoded function
	// proxy forwards it across the boundary: wired to the context's
	// own side's EncodeContext.Encode by the Bridge.
	EncodeArg func(v any) (any, error)
}

// NewDecodeContext returns a context ready for a single Decode call.
func NewDecodeContext(c *Codec, callbacks *registry.CallbackRegistry, promises *promise.Manager) *DecodeContext {
	return &DecodeContext{Codec: c, Callbacks: callbacks, Promises: promises}
}

func (c *DecodeContext) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger(format, args...)
	}
}

// Decode walks v, applying the first matching rule.
func (c *DecodeContext) Decode(v any) (any, error) {
	for _, rule := range c.Codec.Rules {
		if rule.MatchDecode(v) {
			return rule.Decode(c, v)
		}
	}
	return nil, fmt.Errorf("codec: no rule matched decode value %#v", v)
}

// envelopeType reports the `__type` discriminant of v if v is a
// map[string]any carrying one.
func envelopeType(v any) (string, map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", nil, false
	}
	t, ok := m["__type"].(string)
	if !ok {
		return "", nil, false
	}
	return t, m, true
}
