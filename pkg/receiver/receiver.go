package receiver

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/GoAskAway/rill-sub003/pkg/proto"
	"github.com/GoAskAway/rill-sub003/pkg/registry"
)

// DefaultMaxBatchSize is the backpressure ceiling applied when a
// Receiver is constructed without an explicit override: a batch beyond
// this many operations has its excess ops skipped rather than applied.
const DefaultMaxBatchSize = 5000

// FragmentType is the reserved Element type render() uses to wrap
// multiple root nodes in a single transparent container, since a Host
// UI framework generally expects render() to hand back one node.
const FragmentType = "__FRAGMENT__"

// Element is the minimal (type, props, children) tree render() hands to
// the Host UI framework. Function-valued props are already callable
// proxies by the time a node reaches the Receiver; Element copies them
// through unchanged.
type Element struct {
	Type     string
	Props    map[string]any
	Children []Element
}

// BackpressureEvent is what applyBatch reports when a batch exceeds
// maxBatchSize: the producer is expected to throttle in response.
type BackpressureEvent struct {
	BatchId proto.BatchId
	Skipped int
	Applied int
	Total   int
}

// Receiver owns the canonical node tree and applies operation batches
// to it, producing an ApplyStats per batch and a rolling attribution
// history an operator can query without reproducing the load.
//
// Thread Safety:
//
//	All public methods hold an internal mutex; Receiver is safe for
//	concurrent use, matching the single-threaded-per-side model the
//	protocol assumes in practice (concurrent calls are tolerated, not
//	required).
type Receiver struct {
	mu   sync.Mutex
	tree *proto.Tree

	maxBatchSize int
	history      *attributionHistory

	// OnBackpressure fires synchronously from applyBatch whenever a
	// batch is truncated. Wiring this to Bridge.ToGuest(HostEvent{...})
	// is the caller's job; Receiver has no notion of a Bridge.
	OnBackpressure func(BackpressureEvent)

	// OnUpdate is invoked at most once per applyBatch call, on a
	// background goroutine, after the batch has finished applying. A
	// buffered signal channel coalesces bursts of applyBatch calls that
	// land faster than OnUpdate drains, mirroring the "one update per
	// task, no matter how many batches landed in it" requirement without
	// a real microtask queue to schedule onto.
	OnUpdate func()

	// OnReleaseCallback fires once per fnId a removed or deleted
	// subtree's props referenced, so a caller (typically the Bridge
	// wired in by pkg/engine) can release it from whichever registry
	// owns it. Wiring this is the caller's job; Receiver only knows
	// which ids a node's props carried, never which registry they live
	// in.
	OnReleaseCallback func(registry.FnId)

	Logger func(format string, args ...any)

	nodeCallbacks map[proto.NodeId][]registry.FnId

	updateSignal chan struct{}
	updateOnce   sync.Once
	stopUpdate   chan struct{}
}

// New returns an empty Receiver. maxBatchSize <= 0 falls back to
// DefaultMaxBatchSize.
func New(maxBatchSize int) *Receiver {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Receiver{
		tree:          proto.NewTree(),
		maxBatchSize:  maxBatchSize,
		history:       newAttributionHistory(defaultHistoryWindow, defaultHistoryCap),
		nodeCallbacks: make(map[proto.NodeId][]registry.FnId),
		updateSignal:  make(chan struct{}, 1),
		stopUpdate:    make(chan struct{}),
	}
}

// RecordFnIds associates fnIds with nodeId, so a later structural
// removal of nodeId (REMOVE or DELETE) releases them. Intended to be
// wired to Bridge.OnFnIdsRegistered: the Bridge reports, per batch,
// which node each CREATE/UPDATE op that minted a fresh callback id
// targeted.
func (r *Receiver) RecordFnIds(nodeId proto.NodeId, fnIds []registry.FnId) {
	if len(fnIds) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodeCallbacks[nodeId] = append(r.nodeCallbacks[nodeId], fnIds...)
}

// releaseSubtree walks the subtree rooted at id (id included) and
// releases every fnId recorded against any node in it, then forgets
// those associations. Must be called with r.mu held.
func (r *Receiver) releaseSubtree(id proto.NodeId) {
	n := r.tree.Get(id)
	if n == nil {
		return
	}
	if fnIds, ok := r.nodeCallbacks[id]; ok {
		delete(r.nodeCallbacks, id)
		for _, fnId := range fnIds {
			if r.OnReleaseCallback != nil {
				r.OnReleaseCallback(fnId)
			}
		}
	}
	for _, childId := range n.Children {
		r.releaseSubtree(childId)
	}
}

func (r *Receiver) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (r *Receiver) scheduleUpdate() {
	if r.OnUpdate == nil {
		return
	}
	r.updateOnce.Do(func() {
		go func() {
			for {
				select {
				case <-r.updateSignal:
					r.OnUpdate()
				case <-r.stopUpdate:
					return
				}
			}
		}()
	})
	select {
	case r.updateSignal <- struct{}{}:
	default:
	}
}

// ApplyBatch validates batch, applies its operations in order up to
// maxBatchSize, and returns the resulting ApplyStats. A batch whose
// Version the envelope rejects is returned as an error without
// touching the tree. Individual op failures are caught and counted
// toward Failed rather than aborting the remaining operations.
func (r *Receiver) ApplyBatch(batch proto.OperationBatch) (ApplyStats, error) {
	if err := batch.Validate(); err != nil {
		return ApplyStats{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	nodesBefore := r.tree.Count()

	total := len(batch.Operations)
	applyCount := total
	skipped := 0
	if applyCount > r.maxBatchSize {
		skipped = applyCount - r.maxBatchSize
		applyCount = r.maxBatchSize
	}

	opCounts := make(map[proto.Tag]int)
	skippedOpCounts := make(map[proto.Tag]int)
	appliedTally := newTypeTally()
	skippedTally := newTypeTally()

	applied := 0
	failed := 0

	for i, op := range batch.Operations {
		tag := op.Tag()
		if i >= applyCount {
			skippedOpCounts[tag]++
			if typ := r.opNodeType(op); typ != "" {
				skippedTally.add(typ)
			}
			continue
		}
		opCounts[tag]++
		if err := r.applyOp(op); err != nil {
			failed++
			r.logf("receiver: op %d (%s) failed: %v", i, tag, err)
			continue
		}
		applied++
		if typ := r.opNodeType(op); typ != "" {
			appliedTally.add(typ)
		}
	}

	nodesAfter := r.tree.Count()
	stats := ApplyStats{
		BatchId:             batch.BatchId,
		Total:               total,
		Applied:             applied,
		Skipped:             skipped,
		Failed:              failed,
		DurationMs:          float64(time.Since(start)) / float64(time.Millisecond),
		NodesBefore:         nodesBefore,
		NodesAfter:          nodesAfter,
		NodeDelta:           nodesAfter - nodesBefore,
		OpCounts:            opCounts,
		SkippedOpCounts:     skippedOpCounts,
		TopNodeTypes:        appliedTally.top(),
		TopNodeTypesSkipped: skippedTally.top(),
	}

	r.history.record(stats)

	if skipped > 0 && r.OnBackpressure != nil {
		r.OnBackpressure(BackpressureEvent{
			BatchId: batch.BatchId,
			Skipped: skipped,
			Applied: applied,
			Total:   total,
		})
	}

	r.scheduleUpdate()

	return stats, nil
}

// opNodeType reports the node type an op's target currently has, for
// node-type tallying. Ops that do not name a single existing node (or
// whose node has already been removed by the time this runs, e.g.
// DELETE) report "".
func (r *Receiver) opNodeType(op proto.Op) string {
	var id proto.NodeId
	switch o := op.(type) {
	case proto.Create:
		return o.Type
	case proto.Update:
		id = o.Id
	case proto.Text:
		id = o.Id
	default:
		return ""
	}
	if n := r.tree.Get(id); n != nil {
		return n.Type
	}
	return ""
}

func (r *Receiver) applyOp(op proto.Op) error {
	switch o := op.(type) {
	case proto.Create:
		return r.applyCreate(o)
	case proto.Update:
		return r.applyUpdate(o)
	case proto.Append:
		return r.applyAppend(o)
	case proto.Insert:
		return r.applyInsert(o)
	case proto.Remove:
		return r.applyRemove(o)
	case proto.Delete:
		return r.applyDelete(o)
	case proto.Reorder:
		return r.applyReorder(o)
	case proto.Text:
		return r.applyText(o)
	default:
		r.logf("receiver: unknown op tag %T, ignoring", op)
		return nil
	}
}

func (r *Receiver) applyCreate(o proto.Create) error {
	props := o.Props
	if props == nil {
		props = map[string]any{}
	}
	if r.tree.Get(o.Id) != nil {
		r.logf("receiver: warn: CREATE onto existing node %d, overwriting", o.Id)
	}
	r.tree.Put(&proto.NodeInstance{Id: o.Id, Type: o.Type, Props: props, Children: nil})
	return nil
}

func (r *Receiver) applyUpdate(o proto.Update) error {
	n := r.tree.Get(o.Id)
	if n == nil {
		r.logf("receiver: UPDATE on unknown node %d, ignoring", o.Id)
		return nil
	}
	for k, v := range o.Props {
		n.Props[k] = v
	}
	for _, k := range o.RemovedProps {
		delete(n.Props, k)
	}
	return nil
}

func (r *Receiver) applyAppend(o proto.Append) error {
	if !r.tree.AppendChild(o.ParentId, o.ChildId) {
		return fmt.Errorf("APPEND: parent %d not found", o.ParentId)
	}
	return nil
}

func (r *Receiver) applyInsert(o proto.Insert) error {
	if !r.tree.InsertChild(o.ParentId, o.ChildId, o.Index) {
		return fmt.Errorf("INSERT: parent %d not found", o.ParentId)
	}
	return nil
}

// applyRemove detaches ChildId without destroying it, then releases
// every callback the detached subtree's props referenced: a node's
// structural removal is where its callback entries stop being
// reachable, per the protocol's callback lifetime rule, even though
// the node itself survives in nodeMap until a DELETE or a later
// re-attach.
func (r *Receiver) applyRemove(o proto.Remove) error {
	if !r.tree.RemoveChild(o.ParentId, o.ChildId) {
		return fmt.Errorf("REMOVE: parent %d not found", o.ParentId)
	}
	r.releaseSubtree(o.ChildId)
	return nil
}

// applyDelete destroys Id and every descendant, releasing every
// callback the subtree's props referenced before the nodes themselves
// disappear from the tree.
func (r *Receiver) applyDelete(o proto.Delete) error {
	r.releaseSubtree(o.Id)
	r.tree.DetachFromAll(o.Id)
	r.tree.DeleteSubtree(o.Id)
	return nil
}

func (r *Receiver) applyReorder(o proto.Reorder) error {
	if !r.tree.ReorderChildren(o.ParentId, o.ChildIds) {
		return fmt.Errorf("REORDER: parent %d not found", o.ParentId)
	}
	return nil
}

func (r *Receiver) applyText(o proto.Text) error {
	n := r.tree.Get(o.Id)
	if n == nil {
		r.logf("receiver: TEXT on unknown node %d, ignoring", o.Id)
		return nil
	}
	n.Props["text"] = o.Text
	return nil
}

// Render materializes the current tree. An empty root list renders
// nil; exactly one root renders that node; multiple roots are wrapped
// in a FragmentType container.
func (r *Receiver) Render() any {
	r.mu.Lock()
	defer r.mu.Unlock()

	roots := r.tree.RootChildren()
	switch len(roots) {
	case 0:
		return nil
	case 1:
		el := r.renderNode(roots[0])
		if el == nil {
			return nil
		}
		return *el
	default:
		children := make([]Element, 0, len(roots))
		for _, id := range roots {
			if el := r.renderNode(id); el != nil {
				children = append(children, *el)
			}
		}
		return Element{Type: FragmentType, Children: children}
	}
}

func (r *Receiver) renderNode(id proto.NodeId) *Element {
	n := r.tree.Get(id)
	if n == nil {
		r.logf("receiver: render: unknown node %d, skipping", id)
		return nil
	}
	if n.Type == proto.TextType {
		return &Element{Type: n.Type, Props: n.Props}
	}
	children := make([]Element, 0, len(n.Children))
	for _, childId := range n.Children {
		if child := r.renderNode(childId); child != nil {
			children = append(children, *child)
		}
	}
	return &Element{Type: n.Type, Props: n.Props, Children: children}
}

// Clear drops every node in the tree and forgets every recorded
// node-to-callback association, without releasing them individually:
// a caller clearing the whole tree (e.g. Engine.Destroy) is expected to
// tear down the owning registries wholesale instead. It does not reset
// the attribution history; stats from before a clear remain valid
// observations of past behavior.
func (r *Receiver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Clear()
	r.nodeCallbacks = make(map[proto.NodeId][]registry.FnId)
}

// Stop releases the background goroutine scheduleUpdate starts the
// first time OnUpdate is set and a batch applies. Safe to call even if
// OnUpdate was never set.
func (r *Receiver) Stop() {
	close(r.stopUpdate)
}

// GetStats returns the most recently recorded ApplyStats, or the zero
// value if no batch has been applied yet.
func (r *Receiver) GetStats() ApplyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.last()
}

// DebugInfo is the Receiver's introspection surface: current tree
// shape plus the live attribution window.
type DebugInfo struct {
	NodeCount   int
	RootCount   int
	Attribution AttributionWindow
}

// GetDebugInfo returns the current tree shape and attribution window.
func (r *Receiver) GetDebugInfo() DebugInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return DebugInfo{
		NodeCount:   r.tree.Count(),
		RootCount:   len(r.tree.RootChildren()),
		Attribution: r.history.window(),
	}
}

// snapshot renders a plain, codec-free view of the tree for export:
// every live node keyed by id, plus the root list, sorted by id for a
// deterministic byte-for-byte export across runs.
func (r *Receiver) snapshot() exportSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	roots := append([]proto.NodeId(nil), r.tree.RootChildren()...)
	nodes := r.tree.AllNodes()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Id < nodes[j].Id })

	return exportSnapshot{
		RootChildren: roots,
		Nodes:        nodes,
		Attribution:  r.history.window(),
	}
}
