package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributionHistory_WindowTracksWorstBatchExemplars(t *testing.T) {
	h := newAttributionHistory(time.Minute, 200)

	h.record(ApplyStats{BatchId: 1, Total: 10, DurationMs: 1, Skipped: 0, NodeDelta: 2})
	h.record(ApplyStats{BatchId: 2, Total: 50, DurationMs: 20, Skipped: 5, NodeDelta: -8})
	h.record(ApplyStats{BatchId: 3, Total: 5, DurationMs: 2, Skipped: 1, NodeDelta: 1})

	w := h.window()
	assert.Equal(t, 3, w.SampleCount)
	require.NotNil(t, w.Largest)
	assert.EqualValues(t, 2, w.Largest.BatchId)
	assert.EqualValues(t, 2, w.Slowest.BatchId)
	assert.EqualValues(t, 2, w.MostSkipped.BatchId)
	assert.EqualValues(t, 2, w.MostGrowth.BatchId)
}

func TestAttributionHistory_PrunesByAgeAndCap(t *testing.T) {
	h := newAttributionHistory(20*time.Millisecond, 200)
	h.record(ApplyStats{BatchId: 1, Total: 1})
	time.Sleep(30 * time.Millisecond)
	h.record(ApplyStats{BatchId: 2, Total: 1})

	w := h.window()
	assert.Equal(t, 1, w.SampleCount)
	require.NotNil(t, w.Largest)
	assert.EqualValues(t, 2, w.Largest.BatchId)
}

func TestAttributionHistory_CapLimitsSampleCount(t *testing.T) {
	h := newAttributionHistory(time.Hour, 5)
	for i := 0; i < 20; i++ {
		h.record(ApplyStats{BatchId: 1, Total: 1})
	}
	assert.Len(t, h.samples, 5)
}

func TestAttributionHistory_EmptyWindowIsZeroValue(t *testing.T) {
	h := newAttributionHistory(time.Minute, 200)
	w := h.window()
	assert.Equal(t, 0, w.SampleCount)
	assert.Nil(t, w.Largest)
}
