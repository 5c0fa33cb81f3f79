package codec

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoAskAway/rill-sub003/pkg/promise"
	"github.com/GoAskAway/rill-sub003/pkg/registry"
)

func newPair() (*EncodeContext, *DecodeContext, *registry.CallbackRegistry, *promise.Manager) {
	c := NewDefault()
	callbacks := registry.New()
	promises := promise.New()
	enc := NewEncodeContext(c, callbacks, promises)
	dec := NewDecodeContext(c, callbacks, promises)
	return enc, dec, callbacks, promises
}

func TestCodec_PrimitivesRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	for _, v := range []any{nil, true, false, "hello", 42, 3.14} {
		encoded, err := enc.Encode(v)
		require.NoError(t, err)
		decoded, err := dec.Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestCodec_DateRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	encoded, err := enc.Encode(now)
	require.NoError(t, err)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	got, ok := decoded.(time.Time)
	require.True(t, ok)
	assert.True(t, now.Equal(got))
}

func TestCodec_RegexpRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	re := regexp.MustCompile(`^[a-z]+$`)

	encoded, err := enc.Encode(re)
	require.NoError(t, err)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	got, ok := decoded.(*regexp.Regexp)
	require.True(t, ok)
	assert.Equal(t, re.String(), got.String())
}

func TestCodec_ErrorRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	err := errors.New("boom")

	encoded, encErr := enc.Encode(err)
	require.NoError(t, encErr)
	decoded, decErr := dec.Decode(encoded)
	require.NoError(t, decErr)

	got, ok := decoded.(*RemoteError)
	require.True(t, ok)
	assert.Equal(t, "boom", got.Message)
}

func TestCodec_MapRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	m := map[int]string{1: "a", 2: "b"}

	encoded, err := enc.Encode(m)
	require.NoError(t, err)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	got, ok := decoded.(map[any]any)
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestCodec_SetRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	s := Set{"a", "b", "c"}

	encoded, err := enc.Encode(s)
	require.NoError(t, err)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	got, ok := decoded.(Set)
	require.True(t, ok)
	assert.Equal(t, Set{"a", "b", "c"}, got)
}

func TestCodec_TypedArrayRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	data := []int32{1, 2, 3}

	encoded, err := enc.Encode(data)
	require.NoError(t, err)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, data, decoded)
}

func TestCodec_ByteBufferRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	data := []byte{0x01, 0x02, 0xff}

	encoded, err := enc.Encode(data)
	require.NoError(t, err)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, data, decoded)
}

func TestCodec_ArrayRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	arr := []any{"a", 1, true, nil}

	encoded, err := enc.Encode(arr)
	require.NoError(t, err)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, arr, decoded)
}

func TestCodec_PlainObjectRoundTrip(t *testing.T) {
	enc, dec, _, _ := newPair()
	obj := map[string]any{"flex": float64(1), "nested": map[string]any{"a": "b"}}

	encoded, err := enc.Encode(obj)
	require.NoError(t, err)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, obj, decoded)
}

func TestCodec_StructEncodesAsObject(t *testing.T) {
	enc := NewEncodeContext(NewDefault(), nil, nil)
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	encoded, err := enc.Encode(point{X: 1, Y: 2})
	require.NoError(t, err)

	m, ok := encoded.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, m["x"])
	assert.Equal(t, 2, m["y"])
}

func TestCodec_JSONableUsesToJSON(t *testing.T) {
	enc := NewEncodeContext(NewDefault(), nil, nil)
	encoded, err := enc.Encode(jsonableStub{})
	require.NoError(t, err)
	assert.Equal(t, "reduced", encoded)
}

type jsonableStub struct{}

func (jsonableStub) ToJSON() any { return "reduced" }

// --- P6: cycle safety ---

func TestCodec_CycleSafety(t *testing.T) {
	enc := NewEncodeContext(NewDefault(), nil, nil)

	type node struct {
		Self map[string]any
	}
	cyclic := map[string]any{"a": 1}
	cyclic["self"] = cyclic

	encoded, err := enc.Encode(cyclic)
	require.NoError(t, err)

	m := encoded.(map[string]any)
	inner := m["self"].(map[string]any)
	assert.Equal(t, "circular", inner["__type"])

	dec := NewDecodeContext(NewDefault(), nil, nil)
	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)
	decodedMap := decoded.(map[string]any)
	assert.Nil(t, decodedMap["self"])
}

func TestCodec_DepthLimit(t *testing.T) {
	c := &Codec{Rules: defaultRules(), MaxDepth: 3}
	enc := NewEncodeContext(c, nil, nil)

	deep := map[string]any{"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": 1}}}}
	_, err := enc.Encode(deep)
	assert.Error(t, err)
}

// --- P7: function-proxy fidelity ---

func TestCodec_FunctionProxyFidelity(t *testing.T) {
	enc, dec, callbacks, _ := newPair()

	var observedArgs []any
	fn := registry.Fn(func(args []any) any {
		observedArgs = args
		return nil
	})

	encoded, err := enc.Encode(fn)
	require.NoError(t, err)

	var calledID registry.FnId
	var calledArgs []any
	decCtx := dec
	decCtx.CallRemoteFunction = func(id registry.FnId, args []any) {
		calledID = id
		calledArgs = args
		// Simulate the call crossing back to the original side.
		callbacks.Invoke(id, args)
	}

	decoded, err := decCtx.Decode(encoded)
	require.NoError(t, err)

	proxy, ok := decoded.(registry.Fn)
	require.True(t, ok)

	result := proxy([]any{"a", 1})
	assert.Nil(t, result)
	assert.NotEmpty(t, calledID)
	assert.Equal(t, []any{"a", 1}, calledArgs)
	assert.Equal(t, []any{"a", 1}, observedArgs)
}

// --- promise proxy round trip ---

func TestCodec_PromiseProxyRoundTrip(t *testing.T) {
	enc, dec, _, promises := newPair()

	src := make(chan promise.Result, 1)
	lp := LivePromise{Result: src}

	encoded, err := enc.Encode(lp)
	require.NoError(t, err)

	decoded, err := dec.Decode(encoded)
	require.NoError(t, err)

	pending, ok := decoded.(*promise.PendingPromise)
	require.True(t, ok)

	m := encoded.(map[string]any)
	id := promise.PromiseId(m["__promiseId"].(string))
	promises.Settle(id, promise.Result{Value: "done"})

	result, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", result.Value)
	assert.Equal(t, pending.Id(), id)
}
