package proto

// NodeId is a dense, positive, producer-assigned node identifier.
// Id 0 is reserved for the root container and is never allocated to a
// real node.
type NodeId int64

// RootId identifies the implicit root container that owns every
// top-level node appended with parentId 0.
const RootId NodeId = 0

// TextType is the reserved component type identifying a text node. Its
// props carry a single "text" string, mirrored into NodeInstance.Props
// under the same key by TEXT operations.
const TextType = "__TEXT__"

// Tag identifies the concrete kind of an Op.
type Tag string

const (
	TagCreate  Tag = "CREATE"
	TagUpdate  Tag = "UPDATE"
	TagAppend  Tag = "APPEND"
	TagInsert  Tag = "INSERT"
	TagRemove  Tag = "REMOVE"
	TagDelete  Tag = "DELETE"
	TagReorder Tag = "REORDER"
	TagText    Tag = "TEXT"
)

// Op is the closed tagged union of mutation operations. Every concrete
// operation type in this package implements it; Tag reports which one a
// given value is, so a receiver can safely type-switch on the concrete
// struct after checking the tag (or skip the check and switch directly,
// since the switch is exhaustive over this package's types).
type Op interface {
	Tag() Tag
}

// Create instantiates a node. Type is either a component name the Host
// framework understands, or the reserved TextType for a text node.
type Create struct {
	Id    NodeId
	Type  string
	Props map[string]any
}

func (Create) Tag() Tag { return TagCreate }

// Update shallow-merges Props into the named node, then deletes every key
// listed in RemovedProps. The delete pass always runs after the merge,
// even if a key appears in both.
type Update struct {
	Id           NodeId
	Props        map[string]any
	RemovedProps []string
}

func (Update) Tag() Tag { return TagUpdate }

// Append adds ChildId to the end of ParentId's child list. A ParentId of
// RootId targets the top-level list. Appending a child already present
// is a no-op.
type Append struct {
	ParentId NodeId
	ChildId  NodeId
}

func (Append) Tag() Tag { return TagAppend }

// Insert moves-or-inserts ChildId into ParentId's child list at Index.
// Any existing occurrence of ChildId is removed first, then the child is
// spliced in at Index (clamped to the list length).
type Insert struct {
	ParentId NodeId
	ChildId  NodeId
	Index    int
}

func (Insert) Tag() Tag { return TagInsert }

// Remove detaches ChildId from ParentId's child list without destroying
// the child. Absence of ChildId in the list is not an error.
type Remove struct {
	ParentId NodeId
	ChildId  NodeId
}

func (Remove) Tag() Tag { return TagRemove }

// Delete destroys Id and every transitive descendant, after defensively
// detaching Id from the root list and from every node that still lists
// it as a child (producers should have already sent REMOVE, but the
// defensive scan covers the case where they did not).
type Delete struct {
	Id NodeId
}

func (Delete) Tag() Tag { return TagDelete }

// Reorder replaces ParentId's entire child list with ChildIds, verbatim.
// Nodes present in the old list but absent from ChildIds are orphaned in
// the node map, not recursively detached: producers must emit DELETE for
// any node they intend to actually remove this way.
type Reorder struct {
	ParentId NodeId
	ChildIds []NodeId
}

func (Reorder) Tag() Tag { return TagReorder }

// Text sets the text of a text node, writing Text into the node's
// props under the "text" key.
type Text struct {
	Id   NodeId
	Text string
}

func (Text) Tag() Tag { return TagText }
