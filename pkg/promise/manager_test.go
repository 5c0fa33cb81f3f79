package promise

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreatePendingSettle(t *testing.T) {
	m := New()
	id := PromiseId("p_1")
	pending := m.CreatePending(id)
	assert.Equal(t, 1, m.Size())

	m.Settle(id, Result{Value: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Value)
	assert.Equal(t, 0, m.Size())
}

func TestManager_SettleUnknownIdWarns(t *testing.T) {
	m := New()
	var warned bool
	m.Warnf = func(format string, args ...any) { warned = true }
	m.Settle("bogus", Result{Value: 1})
	assert.True(t, warned)
}

func TestManager_IdsAreMonotonic(t *testing.T) {
	m := New()
	a := m.nextPromiseId()
	b := m.nextPromiseId()
	assert.NotEqual(t, a, b)
	assert.Equal(t, PromiseId("p_1"), a)
	assert.Equal(t, PromiseId("p_2"), b)
}

func TestManager_Timeout(t *testing.T) {
	m := New()
	m.DefaultTimeout = 10 * time.Millisecond
	pending := m.CreatePending("p_timeout")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := pending.Wait(ctx)
	require.NoError(t, err)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "timed out after 10ms")
}

func TestManager_ClearResolvesEverythingAndResetsCounter(t *testing.T) {
	m := New()
	m.DefaultTimeout = time.Minute
	p1 := m.CreatePending(m.nextPromiseId())
	p2 := m.CreatePending(m.nextPromiseId())

	m.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r1, err := p1.Wait(ctx)
	require.NoError(t, err)
	assert.Nil(t, r1.Value)
	assert.NoError(t, r1.Err)

	r2, err := p2.Wait(ctx)
	require.NoError(t, err)
	assert.Nil(t, r2.Value)

	assert.Equal(t, 0, m.Size())
	assert.Equal(t, PromiseId("p_1"), m.nextPromiseId())
}

func TestManager_RegisterFiresOnSettle(t *testing.T) {
	m := New()
	settled := make(chan Result, 1)
	var settledId PromiseId
	m.OnSettle = func(id PromiseId, result Result) {
		settledId = id
		settled <- result
	}

	src := make(chan Result, 1)
	id := m.Register(src)
	src <- Result{Value: 42}

	select {
	case result := <-settled:
		assert.Equal(t, id, settledId)
		assert.Equal(t, 42, result.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnSettle")
	}
}

func TestManager_RegisterPropagatesError(t *testing.T) {
	m := New()
	settled := make(chan Result, 1)
	m.OnSettle = func(id PromiseId, result Result) { settled <- result }

	src := make(chan Result, 1)
	m.Register(src)
	src <- Result{Err: errors.New("boom")}

	select {
	case result := <-settled:
		require.Error(t, result.Err)
		assert.Equal(t, "boom", result.Err.Error())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnSettle")
	}
}

func TestManager_ZeroTimeoutDisablesExpiry(t *testing.T) {
	m := New()
	pending := m.CreatePending("p_no_timeout")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.Size())
}
