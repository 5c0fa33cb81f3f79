package codec

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/GoAskAway/rill-sub003/pkg/promise"
	"github.com/GoAskAway/rill-sub003/pkg/registry"
)

// maxLiveFunctionSource bounds the optional __source hint a live
// function envelope may carry. Go closures carry no retrievable source
// text at runtime, so this module never populates __source on encode;
// the field and its truncation rule are kept for decode-side symmetry
// with envelopes produced by a non-Go peer.
const maxLiveFunctionSource = 500

// defaultRules returns the built-in rules in the exact order the
// protocol's type-rule table specifies. Reordering changes behavior:
// envelope-producing rules must sit after the rule that consumes their
// own envelope shape on decode.
func defaultRules() []Rule {
	return []Rule{
		nilRule{},
		primitiveRule{},
		circularRule{},
		serializedFunctionRule{},
		liveFunctionRule{},
		serializedPromiseRule{},
		livePromiseRule{},
		dateRule{},
		regexpRule{},
		errorRule{},
		mapRule{},
		setRule{},
		typedArrayRule{},
		byteBufferRule{},
		arrayRule{},
		jsonableRule{},
		plainObjectRule{},
	}
}

// --- 1. null / undefined ---------------------------------------------

type nilRule struct{}

func (nilRule) Name() string          { return "null" }
func (nilRule) Strategy() Strategy    { return StrategyPassthrough }
func (nilRule) MatchEncode(v any) bool { return v == nil }
func (nilRule) Encode(*EncodeContext, any) (any, error) { return nil, nil }
func (nilRule) MatchDecode(v any) bool { return v == nil }
func (nilRule) Decode(*DecodeContext, any) (any, error) { return nil, nil }

// --- 2. bool / number / string ----------------------------------------

type primitiveRule struct{}

func (primitiveRule) Name() string       { return "primitive" }
func (primitiveRule) Strategy() Strategy { return StrategyPassthrough }

func isPrimitive(v any) bool {
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	// Named types over these kinds (registry.FnId is a string) pass
	// through as well, unless they are errors for errorRule.
	if _, isErr := v.(error); isErr {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func (primitiveRule) MatchEncode(v any) bool { return isPrimitive(v) }
func (primitiveRule) Encode(_ *EncodeContext, v any) (any, error) { return v, nil }
func (primitiveRule) MatchDecode(v any) bool { return isPrimitive(v) }
func (primitiveRule) Decode(_ *DecodeContext, v any) (any, error) { return v, nil }

// --- 3. circular marker -------------------------------------------------

// circularRule never matches on encode: the cycle marker is emitted
// directly by EncodeContext.Encode's visited-set check, before any rule
// is consulted. It exists here so decode can recognize and unwrap the
// marker a peer (or this module's own encoder) produced.
type circularRule struct{}

func (circularRule) Name() string       { return "circular" }
func (circularRule) Strategy() Strategy { return StrategySerialize }
func (circularRule) MatchEncode(any) bool { return false }
func (circularRule) Encode(*EncodeContext, any) (any, error) {
	return nil, errors.New("codec: circular marker is never produced by rule dispatch")
}
func (circularRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "circular"
}
func (circularRule) Decode(*DecodeContext, any) (any, error) { return nil, nil }

// --- 4. serialized function proxy ---------------------------------------

type serializedFunctionRule struct{}

func (serializedFunctionRule) Name() string       { return "serialized-function" }
func (serializedFunctionRule) Strategy() Strategy { return StrategyProxy }
func (serializedFunctionRule) MatchEncode(any) bool { return false }
func (serializedFunctionRule) Encode(*EncodeContext, any) (any, error) {
	return nil, errors.New("codec: serialized-function rule is decode-only")
}

func (serializedFunctionRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "function"
}

// Decode returns a registry.Fn proxy: invoking it encodes its arguments
// and forwards them to the other side via CallRemoteFunction. The call
// is fire-and-forget; it always returns nil synchronously, and a real
// result, if any, arrives later as a settled promise, not as this
// call's return value.
func (serializedFunctionRule) Decode(ctx *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	fnId := registry.FnId(fmt.Sprint(m["__fnId"]))

	proxy := registry.Fn(func(args []any) any {
		encoded := make([]any, len(args))
		for i, a := range args {
			if ctx.EncodeArg == nil {
				encoded[i] = a
				continue
			}
			e, err := ctx.EncodeArg(a)
			if err != nil {
				ctx.logf("codec: encoding argument %d to remote function %s: %v", i, fnId, err)
				encoded[i] = nil
				continue
			}
			encoded[i] = e
		}
		if ctx.CallRemoteFunction != nil {
			ctx.CallRemoteFunction(fnId, encoded)
		}
		return nil
	})
	return proxy, nil
}

// --- 5. live function ----------------------------------------------------

type liveFunctionRule struct{}

func (liveFunctionRule) Name() string       { return "live-function" }
func (liveFunctionRule) Strategy() Strategy { return StrategyProxy }

func (liveFunctionRule) MatchEncode(v any) bool {
	_, ok := v.(registry.Fn)
	return ok
}

func (liveFunctionRule) Encode(ctx *EncodeContext, v any) (any, error) {
	fn := v.(registry.Fn)
	if ctx.Callbacks == nil {
		return nil, errors.New("codec: encode live function with no callback registry bound")
	}
	fnId := ctx.Callbacks.Register(fn)
	return map[string]any{"__type": "function", "__fnId": string(fnId)}, nil
}

func (liveFunctionRule) MatchDecode(any) bool { return false }
func (liveFunctionRule) Decode(*DecodeContext, any) (any, error) {
	return nil, errors.New("codec: live-function rule is encode-only")
}

// --- 6. serialized promise -----------------------------------------------

type serializedPromiseRule struct{}

func (serializedPromiseRule) Name() string       { return "serialized-promise" }
func (serializedPromiseRule) Strategy() Strategy { return StrategyProxy }
func (serializedPromiseRule) MatchEncode(any) bool { return false }
func (serializedPromiseRule) Encode(*EncodeContext, any) (any, error) {
	return nil, errors.New("codec: serialized-promise rule is decode-only")
}

func (serializedPromiseRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "promise"
}

func (serializedPromiseRule) Decode(ctx *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	id := promise.PromiseId(fmt.Sprint(m["__promiseId"]))
	if ctx.Promises == nil {
		return nil, fmt.Errorf("codec: decode promise %s with no promise manager bound", id)
	}
	return ctx.Promises.CreatePending(id), nil
}

// --- 7. live promise -------------------------------------------------------

type livePromiseRule struct{}

func (livePromiseRule) Name() string       { return "live-promise" }
func (livePromiseRule) Strategy() Strategy { return StrategyProxy }

func (livePromiseRule) MatchEncode(v any) bool {
	_, ok := v.(LivePromise)
	return ok
}

func (livePromiseRule) Encode(ctx *EncodeContext, v any) (any, error) {
	lp := v.(LivePromise)
	if ctx.Promises == nil {
		return nil, errors.New("codec: encode live promise with no promise manager bound")
	}
	id := ctx.Promises.Register(lp.Result)
	return map[string]any{"__type": "promise", "__promiseId": string(id)}, nil
}

func (livePromiseRule) MatchDecode(any) bool { return false }
func (livePromiseRule) Decode(*DecodeContext, any) (any, error) {
	return nil, errors.New("codec: live-promise rule is encode-only")
}

// --- 8. Date ---------------------------------------------------------------

type dateRule struct{}

func (dateRule) Name() string       { return "date" }
func (dateRule) Strategy() Strategy { return StrategySerialize }

func (dateRule) MatchEncode(v any) bool {
	_, ok := v.(time.Time)
	return ok
}

func (dateRule) Encode(_ *EncodeContext, v any) (any, error) {
	t := v.(time.Time)
	return map[string]any{"__type": "date", "__value": t.UTC().Format(time.RFC3339Nano)}, nil
}

func (dateRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "date"
}

func (dateRule) Decode(_ *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	s := fmt.Sprint(m["__value"])
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("codec: decode date %q: %w", s, err)
	}
	return parsed, nil
}

// --- 9. RegExp ---------------------------------------------------------------

type regexpRule struct{}

func (regexpRule) Name() string       { return "regexp" }
func (regexpRule) Strategy() Strategy { return StrategySerialize }

func (regexpRule) MatchEncode(v any) bool {
	_, ok := v.(*regexp.Regexp)
	return ok
}

func (regexpRule) Encode(_ *EncodeContext, v any) (any, error) {
	re := v.(*regexp.Regexp)
	return map[string]any{"__type": "regexp", "__source": re.String(), "__flags": ""}, nil
}

func (regexpRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "regexp"
}

func (regexpRule) Decode(_ *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	source := fmt.Sprint(m["__source"])
	flags := fmt.Sprint(m["__flags"])
	pattern := source
	if flags != "" && flags != "<nil>" {
		pattern = fmt.Sprintf("(?%s)%s", flags, source)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("codec: decode regexp %q: %w", pattern, err)
	}
	return re, nil
}

// --- 10. Error ---------------------------------------------------------------

type errorRule struct{}

func (errorRule) Name() string       { return "error" }
func (errorRule) Strategy() Strategy { return StrategySerialize }

func (errorRule) MatchEncode(v any) bool {
	_, ok := v.(error)
	return ok
}

func (errorRule) Encode(_ *EncodeContext, v any) (any, error) {
	err := v.(error)
	name := reflect.TypeOf(err).String()
	env := map[string]any{"__type": "error", "__name": name, "__message": err.Error()}
	if re, ok := err.(*RemoteError); ok && re.Stack != "" {
		env["__stack"] = re.Stack
	}
	return env, nil
}

func (errorRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "error"
}

func (errorRule) Decode(_ *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	re := &RemoteError{Name: fmt.Sprint(m["__name"]), Message: fmt.Sprint(m["__message"])}
	if stack, ok := m["__stack"]; ok {
		re.Stack = fmt.Sprint(stack)
	}
	return re, nil
}

// --- 11. Map -----------------------------------------------------------------

type mapRule struct{}

func (mapRule) Name() string       { return "map" }
func (mapRule) Strategy() Strategy { return StrategySerialize }

// MatchEncode claims generic maps whose key type is not string. A
// string-keyed map is the Go rendering of a plain object and falls
// through to plainObjectRule instead, mirroring the JS Map/plain-object
// split.
func (mapRule) MatchEncode(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return false
	}
	return rv.Type().Key().Kind() != reflect.String
}

func (mapRule) Encode(ctx *EncodeContext, v any) (any, error) {
	rv := reflect.ValueOf(v)
	entries := make([]any, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := ctx.Encode(iter.Key().Interface())
		if err != nil {
			return nil, err
		}
		val, err := ctx.Encode(iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		entries = append(entries, []any{k, val})
	}
	return map[string]any{"__type": "map", "__entries": entries}, nil
}

func (mapRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "map"
}

func (mapRule) Decode(ctx *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	raw, _ := m["__entries"].([]any)
	result := make(map[any]any, len(raw))
	for _, entryAny := range raw {
		pair, ok := entryAny.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("codec: malformed map entry %#v", entryAny)
		}
		k, err := ctx.Decode(pair[0])
		if err != nil {
			return nil, err
		}
		val, err := ctx.Decode(pair[1])
		if err != nil {
			return nil, err
		}
		result[k] = val
	}
	return result, nil
}

// --- 12. Set -----------------------------------------------------------------

type setRule struct{}

func (setRule) Name() string       { return "set" }
func (setRule) Strategy() Strategy { return StrategySerialize }

func (setRule) MatchEncode(v any) bool {
	_, ok := v.(Set)
	return ok
}

func (setRule) Encode(ctx *EncodeContext, v any) (any, error) {
	s := v.(Set)
	values := make([]any, len(s))
	for i, item := range s {
		encoded, err := ctx.Encode(item)
		if err != nil {
			return nil, err
		}
		values[i] = encoded
	}
	return map[string]any{"__type": "set", "__values": values}, nil
}

func (setRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "set"
}

func (setRule) Decode(ctx *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	raw, _ := m["__values"].([]any)
	result := make(Set, len(raw))
	for i, item := range raw {
		decoded, err := ctx.Decode(item)
		if err != nil {
			return nil, err
		}
		result[i] = decoded
	}
	return result, nil
}

// --- 13. TypedArray -----------------------------------------------------------

var typedArrayCtors = []reflect.Kind{
	reflect.Int8, reflect.Uint16, reflect.Int16,
	reflect.Uint32, reflect.Int32, reflect.Uint64, reflect.Int64,
	reflect.Float32, reflect.Float64,
}

type typedArrayRule struct{}

func (typedArrayRule) Name() string       { return "typedarray" }
func (typedArrayRule) Strategy() Strategy { return StrategySerialize }

func (typedArrayRule) MatchEncode(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return false
	}
	elemKind := rv.Type().Elem().Kind()
	for _, k := range typedArrayCtors {
		if elemKind == k {
			return true
		}
	}
	return false
}

func (typedArrayRule) Encode(_ *EncodeContext, v any) (any, error) {
	rv := reflect.ValueOf(v)
	ctor := rv.Type().Elem().Kind().String()
	data := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		data[i] = rv.Index(i).Interface()
	}
	return map[string]any{"__type": "typedarray", "__ctor": ctor, "__data": data}, nil
}

func (typedArrayRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "typedarray"
}

func (typedArrayRule) Decode(_ *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	ctor := fmt.Sprint(m["__ctor"])
	raw, _ := m["__data"].([]any)

	switch ctor {
	case "int8":
		out := make([]int8, len(raw))
		for i, x := range raw {
			out[i] = int8(toFloat(x))
		}
		return out, nil
	case "int16":
		out := make([]int16, len(raw))
		for i, x := range raw {
			out[i] = int16(toFloat(x))
		}
		return out, nil
	case "uint16":
		out := make([]uint16, len(raw))
		for i, x := range raw {
			out[i] = uint16(toFloat(x))
		}
		return out, nil
	case "int32":
		out := make([]int32, len(raw))
		for i, x := range raw {
			out[i] = int32(toFloat(x))
		}
		return out, nil
	case "uint32":
		out := make([]uint32, len(raw))
		for i, x := range raw {
			out[i] = uint32(toFloat(x))
		}
		return out, nil
	case "int64":
		out := make([]int64, len(raw))
		for i, x := range raw {
			out[i] = int64(toFloat(x))
		}
		return out, nil
	case "uint64":
		out := make([]uint64, len(raw))
		for i, x := range raw {
			out[i] = uint64(toFloat(x))
		}
		return out, nil
	case "float32":
		out := make([]float32, len(raw))
		for i, x := range raw {
			out[i] = float32(toFloat(x))
		}
		return out, nil
	case "float64":
		out := make([]float64, len(raw))
		for i, x := range raw {
			out[i] = toFloat(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unknown typed array ctor %q", ctor)
	}
}

// toFloat widens any of the numeric kinds a typed-array element can
// arrive as (a real Go integer/float type when decoding straight from
// an in-process Encode, or float64 once a value has round-tripped
// through JSON) to a common float64 for reconstruction.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return 0
}

// --- 14. Byte buffer -----------------------------------------------------------

type byteBufferRule struct{}

func (byteBufferRule) Name() string       { return "arraybuffer" }
func (byteBufferRule) Strategy() Strategy { return StrategySerialize }

func (byteBufferRule) MatchEncode(v any) bool {
	_, ok := v.([]byte)
	return ok
}

func (byteBufferRule) Encode(_ *EncodeContext, v any) (any, error) {
	b := v.([]byte)
	data := make([]any, len(b))
	for i, x := range b {
		data[i] = x
	}
	return map[string]any{"__type": "arraybuffer", "__data": data}, nil
}

func (byteBufferRule) MatchDecode(v any) bool {
	t, _, ok := envelopeType(v)
	return ok && t == "arraybuffer"
}

func (byteBufferRule) Decode(_ *DecodeContext, v any) (any, error) {
	_, m, _ := envelopeType(v)
	switch raw := m["__data"].(type) {
	case []byte:
		return raw, nil
	case []any:
		out := make([]byte, len(raw))
		for i, x := range raw {
			out[i] = byte(toFloat(x))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: malformed arraybuffer payload %#v", raw)
	}
}

// --- 15. Array -----------------------------------------------------------------

type arrayRule struct{}

func (arrayRule) Name() string       { return "array" }
func (arrayRule) Strategy() Strategy { return StrategySerialize }

// MatchEncode claims any remaining slice/array kind. By rule-order this
// only fires for values typedArrayRule and byteBufferRule didn't already
// claim.
func (arrayRule) MatchEncode(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array)
}

func (arrayRule) Encode(ctx *EncodeContext, v any) (any, error) {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		encoded, err := ctx.Encode(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = encoded
	}
	return out, nil
}

func (arrayRule) MatchDecode(v any) bool {
	_, ok := v.([]any)
	return ok
}

func (arrayRule) Decode(ctx *DecodeContext, v any) (any, error) {
	raw := v.([]any)
	out := make([]any, len(raw))
	for i, item := range raw {
		decoded, err := ctx.Decode(item)
		if err != nil {
			return nil, err
		}
		out[i] = decoded
	}
	return out, nil
}

// --- 16. toJSON objects -----------------------------------------------------

// JSONable is the Go rendering of an object with a user-defined toJSON:
// a value that knows how to reduce itself to a plain encodable shape.
type JSONable interface {
	ToJSON() any
}

type jsonableRule struct{}

func (jsonableRule) Name() string       { return "jsonable" }
func (jsonableRule) Strategy() Strategy { return StrategySerialize }

func (jsonableRule) MatchEncode(v any) bool {
	_, ok := v.(JSONable)
	return ok
}

func (jsonableRule) Encode(ctx *EncodeContext, v any) (any, error) {
	return ctx.Encode(v.(JSONable).ToJSON())
}

func (jsonableRule) MatchDecode(any) bool { return false }
func (jsonableRule) Decode(*DecodeContext, any) (any, error) {
	return nil, errors.New("codec: jsonable rule is encode-only")
}

// --- 17. Plain object --------------------------------------------------------

type plainObjectRule struct{}

func (plainObjectRule) Name() string       { return "plain-object" }
func (plainObjectRule) Strategy() Strategy { return StrategySerialize }

func (plainObjectRule) MatchEncode(v any) bool {
	if _, ok := v.(map[string]any); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	return rv.IsValid() && rv.Kind() == reflect.Struct
}

func (plainObjectRule) Encode(ctx *EncodeContext, v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return encodeStringMap(ctx, m)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
		}
		encoded, err := ctx.Encode(rv.Field(i).Interface())
		if err != nil {
			return nil, err
		}
		out[name] = encoded
	}
	return out, nil
}

func encodeStringMap(ctx *EncodeContext, m map[string]any) (any, error) {
	out := make(map[string]any, len(m))
	for k, val := range m {
		encoded, err := ctx.Encode(val)
		if err != nil {
			return nil, err
		}
		out[k] = encoded
	}
	return out, nil
}

func (plainObjectRule) MatchDecode(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func (plainObjectRule) Decode(ctx *DecodeContext, v any) (any, error) {
	m := v.(map[string]any)
	out := make(map[string]any, len(m))
	for k, val := range m {
		decoded, err := ctx.Decode(val)
		if err != nil {
			return nil, err
		}
		out[k] = decoded
	}
	return out, nil
}
