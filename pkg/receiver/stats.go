package receiver

import "github.com/GoAskAway/rill-sub003/pkg/proto"

// NodeTypeCount pairs a node type name with an occurrence count, used for
// the top-N node type breakdowns in ApplyStats.
type NodeTypeCount struct {
	Type  string
	Count int
}

// ApplyStats summarizes one applyBatch call: how many ops were
// attempted, how many actually applied, how many were skipped for
// backpressure or failed individually, how long it took, and how the
// tree's size and shape changed as a result.
type ApplyStats struct {
	BatchId    proto.BatchId
	Total      int
	Applied    int
	Skipped    int
	Failed     int
	DurationMs float64

	NodesBefore int
	NodesAfter  int
	NodeDelta   int

	OpCounts        map[proto.Tag]int
	SkippedOpCounts map[proto.Tag]int

	TopNodeTypes        []NodeTypeCount
	TopNodeTypesSkipped []NodeTypeCount
}

const topNodeTypesLimit = 6

// typeTally accumulates per-type occurrence counts during an apply pass
// and reduces to a capped, count-descending slice on demand.
type typeTally struct {
	counts map[string]int
	order  []string
}

func newTypeTally() *typeTally {
	return &typeTally{counts: make(map[string]int)}
}

func (t *typeTally) add(nodeType string) {
	if _, seen := t.counts[nodeType]; !seen {
		t.order = append(t.order, nodeType)
	}
	t.counts[nodeType]++
}

// top returns up to topNodeTypesLimit entries, sorted by count descending
// then by first-seen order to keep the result deterministic for ties.
func (t *typeTally) top() []NodeTypeCount {
	result := make([]NodeTypeCount, 0, len(t.order))
	for _, typ := range t.order {
		result = append(result, NodeTypeCount{Type: typ, Count: t.counts[typ]})
	}
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].Count > result[j-1].Count; j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	if len(result) > topNodeTypesLimit {
		result = result[:topNodeTypesLimit]
	}
	return result
}
