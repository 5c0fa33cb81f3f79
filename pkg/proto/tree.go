package proto

// Tree is the canonical Host-side node tree: a flat map from NodeId to
// NodeInstance plus a separate ordered list of nodes appended directly to
// the root (parent id RootId). Representing parent/child links by id
// rather than by pointer means a node never owns a reference to its
// parent or its children beyond these two structures, which is what makes
// subtree deletion a matter of walking ids instead of untangling shared
// pointers.
//
// Tree itself only maintains structural invariants (duplicate-free child
// lists, id validity); it has no notion of a "batch" or of statistics.
// pkg/receiver is the op-application layer built on top of it.
type Tree struct {
	nodes        map[NodeId]*NodeInstance
	rootChildren []NodeId
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{nodes: make(map[NodeId]*NodeInstance)}
}

// Get returns the node for id, or nil if it does not exist.
func (t *Tree) Get(id NodeId) *NodeInstance {
	return t.nodes[id]
}

// Exists reports whether id is currently present in the tree.
func (t *Tree) Exists(id NodeId) bool {
	_, ok := t.nodes[id]
	return ok
}

// Count returns the number of live nodes, excluding the implicit root.
func (t *Tree) Count() int {
	return len(t.nodes)
}

// RootChildren returns the current top-level child list. The returned
// slice must not be mutated by the caller.
func (t *Tree) RootChildren() []NodeId {
	return t.rootChildren
}

// Put inserts or replaces the node for n.Id. A replace does not reattach
// the old entry's children to the new node, matching the protocol's
// decision to treat id reuse as a producer bug that overwrites. Put
// itself does not log; the Receiver logs the overwrite.
func (t *Tree) Put(n *NodeInstance) {
	t.nodes[n.Id] = n
}

// childList returns the mutable child-list slot for parentId: the root
// list for RootId, or the named node's Children field otherwise. It
// returns nil, false if parentId does not exist (other than RootId).
func (t *Tree) childList(parentId NodeId) (*[]NodeId, bool) {
	if parentId == RootId {
		return &t.rootChildren, true
	}
	parent, ok := t.nodes[parentId]
	if !ok {
		return nil, false
	}
	return &parent.Children, true
}

func indexOf(ids []NodeId, id NodeId) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeAt(ids []NodeId, i int) []NodeId {
	return append(ids[:i], ids[i+1:]...)
}

// AppendChild appends childId to parentId's child list. A child already
// present is left in place (no-op), preserving the duplicate-free
// invariant. Reports whether parentId was found.
func (t *Tree) AppendChild(parentId, childId NodeId) bool {
	list, ok := t.childList(parentId)
	if !ok {
		return false
	}
	if indexOf(*list, childId) >= 0 {
		return true
	}
	*list = append(*list, childId)
	return true
}

// InsertChild removes any existing occurrence of childId from parentId's
// child list, then splices it back in at index, clamped to the resulting
// list length. Reports whether parentId was found.
func (t *Tree) InsertChild(parentId, childId NodeId, index int) bool {
	list, ok := t.childList(parentId)
	if !ok {
		return false
	}
	if i := indexOf(*list, childId); i >= 0 {
		*list = removeAt(*list, i)
	}
	if index < 0 {
		index = 0
	}
	if index > len(*list) {
		index = len(*list)
	}
	*list = append(*list, RootId)
	copy((*list)[index+1:], (*list)[index:])
	(*list)[index] = childId
	return true
}

// RemoveChild removes the first occurrence of childId from parentId's
// child list. Absence of childId is not an error. Reports whether
// parentId was found.
func (t *Tree) RemoveChild(parentId, childId NodeId) bool {
	list, ok := t.childList(parentId)
	if !ok {
		return false
	}
	if i := indexOf(*list, childId); i >= 0 {
		*list = removeAt(*list, i)
	}
	return true
}

// ReorderChildren replaces parentId's entire child list verbatim with
// childIds. Nodes dropped from the old list are not recursively detached
// from the tree: they simply stop being reachable from this parent.
// Reports whether parentId was found.
func (t *Tree) ReorderChildren(parentId NodeId, childIds []NodeId) bool {
	list, ok := t.childList(parentId)
	if !ok {
		return false
	}
	next := make([]NodeId, len(childIds))
	copy(next, childIds)
	*list = next
	return true
}

// DetachFromAll removes childId from the root list and from every
// remaining node's child list. It is the defensive scan the protocol
// requires before a DELETE, to cover producers that omitted the
// preceding REMOVE.
func (t *Tree) DetachFromAll(childId NodeId) {
	if i := indexOf(t.rootChildren, childId); i >= 0 {
		t.rootChildren = removeAt(t.rootChildren, i)
	}
	for _, n := range t.nodes {
		if i := indexOf(n.Children, childId); i >= 0 {
			n.Children = removeAt(n.Children, i)
		}
	}
}

// DeleteSubtree removes id and every transitive descendant from the node
// map. It does not touch any parent's child list; callers detach id from
// its parents (DetachFromAll) before calling this.
func (t *Tree) DeleteSubtree(id NodeId) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	children := append([]NodeId(nil), n.Children...)
	delete(t.nodes, id)
	for _, c := range children {
		t.DeleteSubtree(c)
	}
}

// AllNodes returns a deep copy of every live node, in no particular
// order. Each entry is built with clone so a caller (export, snapshot)
// can freely mutate the returned Props/Children without aliasing the
// live tree. Callers that need a deterministic order (e.g. export)
// should sort the result themselves.
func (t *Tree) AllNodes() []NodeInstance {
	result := make([]NodeInstance, 0, len(t.nodes))
	for _, n := range t.nodes {
		result = append(result, *n.clone())
	}
	return result
}

// Clear drops every node and the root list, resetting the tree to empty.
func (t *Tree) Clear() {
	t.nodes = make(map[NodeId]*NodeInstance)
	t.rootChildren = nil
}
