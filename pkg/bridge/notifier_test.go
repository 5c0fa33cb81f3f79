package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_FlushesOnMaxBatchSize(t *testing.T) {
	n, err := NewNotifier(time.Hour, 2)
	require.NoError(t, err)
	defer n.Stop()

	var mu sync.Mutex
	var flushed []HostMessage
	flushedCh := make(chan struct{}, 1)
	n.SetHandler(func(destination string, messages []HostMessage) {
		mu.Lock()
		flushed = append(flushed, messages...)
		mu.Unlock()
		select {
		case flushedCh <- struct{}{}:
		default:
		}
	})

	n.Notify("guest-1", HostEvent{EventName: "RECEIVER_BACKPRESSURE"})
	n.Notify("guest-1", HostEvent{EventName: "RECEIVER_BACKPRESSURE"})

	select {
	case <-flushedCh:
	case <-time.After(time.Second):
		t.Fatal("expected flush on reaching maxBatchSize")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, flushed, 2)
}

func TestNotifier_FlushesOnInterval(t *testing.T) {
	n, err := NewNotifier(20*time.Millisecond, 1000)
	require.NoError(t, err)
	defer n.Stop()

	flushedCh := make(chan []HostMessage, 1)
	n.SetHandler(func(destination string, messages []HostMessage) {
		flushedCh <- messages
	})

	n.Notify("guest-1", HostEvent{EventName: "RECEIVER_BACKPRESSURE"})

	select {
	case messages := <-flushedCh:
		assert.Len(t, messages, 1)
	case <-time.After(time.Second):
		t.Fatal("expected periodic flush")
	}
}

func TestNotifier_StopFlushesPending(t *testing.T) {
	n, err := NewNotifier(time.Hour, 1000)
	require.NoError(t, err)

	var flushed []HostMessage
	n.SetHandler(func(destination string, messages []HostMessage) {
		flushed = append(flushed, messages...)
	})

	n.Notify("guest-1", HostEvent{EventName: "RECEIVER_BACKPRESSURE"})
	n.Stop()

	assert.Len(t, flushed, 1)
}

func TestThrottle_ShouldSend(t *testing.T) {
	th, err := NewThrottle(50 * time.Millisecond)
	require.NoError(t, err)

	assert.True(t, th.ShouldSend("guest-1", "RECEIVER_BACKPRESSURE"))
	assert.False(t, th.ShouldSend("guest-1", "RECEIVER_BACKPRESSURE"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, th.ShouldSend("guest-1", "RECEIVER_BACKPRESSURE"))
}

func TestThrottle_ResetClearsDestination(t *testing.T) {
	th, err := NewThrottle(time.Hour)
	require.NoError(t, err)

	require.True(t, th.ShouldSend("guest-1", "EVENT"))
	require.False(t, th.ShouldSend("guest-1", "EVENT"))

	th.Reset("guest-1")
	assert.True(t, th.ShouldSend("guest-1", "EVENT"))
}

func TestNotifier_RejectsInvalidConfig(t *testing.T) {
	_, err := NewNotifier(0, 1)
	assert.Error(t, err)

	_, err = NewNotifier(time.Second, 0)
	assert.Error(t, err)
}
