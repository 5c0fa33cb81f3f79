package receiver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoAskAway/rill-sub003/pkg/proto"
)

func batch(id proto.BatchId, ops ...proto.Op) proto.OperationBatch {
	return proto.OperationBatch{Version: proto.WireVersion, BatchId: id, Operations: ops}
}

func TestReceiver_CreateThenAppendRenders(t *testing.T) {
	r := New(0)

	_, err := r.ApplyBatch(batch(1,
		proto.Create{Id: 1, Type: "View", Props: map[string]any{"flex": 1}},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
	))
	require.NoError(t, err)

	el, ok := r.Render().(Element)
	require.True(t, ok)
	assert.Equal(t, "View", el.Type)
	assert.Equal(t, 1, el.Props["flex"])
}

func TestReceiver_RenderEmptyIsNil(t *testing.T) {
	r := New(0)
	assert.Nil(t, r.Render())
}

func TestReceiver_RenderMultipleRootsWrapsInFragment(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1,
		proto.Create{Id: 1, Type: "View"},
		proto.Create{Id: 2, Type: "View"},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
		proto.Append{ParentId: proto.RootId, ChildId: 2},
	))
	require.NoError(t, err)

	el, ok := r.Render().(Element)
	require.True(t, ok)
	assert.Equal(t, FragmentType, el.Type)
	assert.Len(t, el.Children, 2)
}

func TestReceiver_CreateReplacesExistingId(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1, proto.Create{Id: 1, Type: "View", Props: map[string]any{"a": 1}}))
	require.NoError(t, err)
	_, err = r.ApplyBatch(batch(2, proto.Create{Id: 1, Type: "Text", Props: map[string]any{"b": 2}}))
	require.NoError(t, err)

	_, err = r.ApplyBatch(batch(3, proto.Append{ParentId: proto.RootId, ChildId: 1}))
	require.NoError(t, err)

	el, ok := r.Render().(Element)
	require.True(t, ok)
	assert.Equal(t, "Text", el.Type)
	assert.Nil(t, el.Props["a"])
	assert.Equal(t, 2, el.Props["b"])
}

func TestReceiver_UpdateMergesThenDeletesRemovedProps(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1, proto.Create{Id: 1, Type: "View", Props: map[string]any{"a": 1, "b": 2}}))
	require.NoError(t, err)

	stats, err := r.ApplyBatch(batch(2, proto.Update{Id: 1, Props: map[string]any{"c": 3}, RemovedProps: []string{"b"}}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)

	_, err = r.ApplyBatch(batch(3, proto.Append{ParentId: proto.RootId, ChildId: 1}))
	require.NoError(t, err)
	el := r.Render().(Element)
	assert.Equal(t, 1, el.Props["a"])
	assert.Equal(t, 3, el.Props["c"])
	_, hasB := el.Props["b"]
	assert.False(t, hasB)
}

func TestReceiver_UpdateOnMissingIdIsNoop(t *testing.T) {
	r := New(0)
	stats, err := r.ApplyBatch(batch(1, proto.Update{Id: 99, Props: map[string]any{"a": 1}}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 0, stats.Failed)
}

func TestReceiver_AppendDuplicateIsNoop(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1,
		proto.Create{Id: 1, Type: "View"},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
	))
	require.NoError(t, err)
	assert.Len(t, r.tree.RootChildren(), 1)
}

func TestReceiver_InsertClampsIndexAndMoves(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1,
		proto.Create{Id: 1, Type: "View"},
		proto.Create{Id: 2, Type: "View"},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
		proto.Append{ParentId: proto.RootId, ChildId: 2},
	))
	require.NoError(t, err)

	_, err = r.ApplyBatch(batch(2, proto.Insert{ParentId: proto.RootId, ChildId: 1, Index: 99}))
	require.NoError(t, err)
	assert.Equal(t, []proto.NodeId{2, 1}, r.tree.RootChildren())
}

func TestReceiver_RemoveAbsentChildIsNoError(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1, proto.Create{Id: 1, Type: "View"}))
	require.NoError(t, err)
	stats, err := r.ApplyBatch(batch(2, proto.Remove{ParentId: proto.RootId, ChildId: 999}))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Failed)
}

func TestReceiver_DeleteRecursivelyRemovesSubtreeAndDetaches(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1,
		proto.Create{Id: 1, Type: "View"},
		proto.Create{Id: 2, Type: "View"},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
		proto.Append{ParentId: 1, ChildId: 2},
	))
	require.NoError(t, err)

	stats, err := r.ApplyBatch(batch(2, proto.Delete{Id: 1}))
	require.NoError(t, err)
	assert.Equal(t, -2, stats.NodeDelta)
	assert.Empty(t, r.tree.RootChildren())
	assert.Nil(t, r.tree.Get(1))
	assert.Nil(t, r.tree.Get(2))
}

func TestReceiver_ReorderReplacesChildListVerbatim(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1,
		proto.Create{Id: 1, Type: "View"},
		proto.Create{Id: 2, Type: "View"},
		proto.Create{Id: 3, Type: "View"},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
		proto.Append{ParentId: proto.RootId, ChildId: 2},
		proto.Append{ParentId: proto.RootId, ChildId: 3},
	))
	require.NoError(t, err)

	_, err = r.ApplyBatch(batch(2, proto.Reorder{ParentId: proto.RootId, ChildIds: []proto.NodeId{3, 1}}))
	require.NoError(t, err)
	assert.Equal(t, []proto.NodeId{3, 1}, r.tree.RootChildren())
	// node 2 is orphaned, not deleted
	assert.NotNil(t, r.tree.Get(2))
}

func TestReceiver_TextSetsPropsText(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1,
		proto.Create{Id: 1, Type: proto.TextType},
		proto.Append{ParentId: proto.RootId, ChildId: 1},
		proto.Text{Id: 1, Text: "hello"},
	))
	require.NoError(t, err)
	el := r.Render().(Element)
	assert.Equal(t, "hello", el.Props["text"])
}

type unknownOp struct{}

func (unknownOp) Tag() proto.Tag { return proto.Tag("BOGUS") }

func TestReceiver_UnknownOpTagIsLoggedAndIgnored(t *testing.T) {
	r := New(0)
	stats, err := r.ApplyBatch(batch(1, unknownOp{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 0, stats.Failed)
}

func TestReceiver_BackpressureTruncatesAndReportsSkipped(t *testing.T) {
	r := New(2)
	var got BackpressureEvent
	r.OnBackpressure = func(ev BackpressureEvent) { got = ev }

	ops := make([]proto.Op, 5)
	for i := range ops {
		ops[i] = proto.Create{Id: proto.NodeId(i + 1), Type: "View"}
	}
	stats, err := r.ApplyBatch(batch(7, ops...))
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, proto.BatchId(7), got.BatchId)
	assert.Equal(t, 3, got.Skipped)
}

func TestReceiver_RejectsBadVersion(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(proto.OperationBatch{Version: 99})
	assert.Error(t, err)
}

func TestReceiver_ClearDropsAllNodes(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1, proto.Create{Id: 1, Type: "View"}, proto.Append{ParentId: proto.RootId, ChildId: 1}))
	require.NoError(t, err)
	r.Clear()
	assert.Nil(t, r.Render())
}

func TestReceiver_OnUpdateCoalescesBurstIntoFewerCalls(t *testing.T) {
	r := New(0)
	defer r.Stop()

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{}, 1)
	r.OnUpdate = func() {
		mu.Lock()
		calls++
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}

	for i := 0; i < 10; i++ {
		_, err := r.ApplyBatch(batch(proto.BatchId(i), proto.Create{Id: proto.NodeId(i + 1), Type: "View"}))
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected at least one OnUpdate call")
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, calls, 10, "expected OnUpdate to coalesce the burst into fewer calls than applyBatch calls")
}

func TestReceiver_GetStatsReturnsMostRecent(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1, proto.Create{Id: 1, Type: "View"}))
	require.NoError(t, err)
	_, err = r.ApplyBatch(batch(2, proto.Create{Id: 2, Type: "View"}))
	require.NoError(t, err)

	assert.Equal(t, proto.BatchId(2), r.GetStats().BatchId)
}

func TestReceiver_GetDebugInfoReportsShapeAndAttribution(t *testing.T) {
	r := New(0)
	_, err := r.ApplyBatch(batch(1, proto.Create{Id: 1, Type: "View"}, proto.Append{ParentId: proto.RootId, ChildId: 1}))
	require.NoError(t, err)

	info := r.GetDebugInfo()
	assert.Equal(t, 1, info.NodeCount)
	assert.Equal(t, 1, info.RootCount)
	assert.Equal(t, 1, info.Attribution.SampleCount)
}
