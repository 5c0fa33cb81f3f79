package proto

// NodeInstance is the Host-side representation of one live node: its
// type, its current props, and the ids of its children in order. Props
// transit unchanged except for function-valued keys, which the codec has
// already turned into callable proxies by the time a NodeInstance is
// built.
type NodeInstance struct {
	Id       NodeId
	Type     string
	Props    map[string]any
	Children []NodeId
}

// clone returns a NodeInstance with its own Props map and Children slice,
// so callers can mutate the copy without aliasing the original.
func (n *NodeInstance) clone() *NodeInstance {
	props := make(map[string]any, len(n.Props))
	for k, v := range n.Props {
		props[k] = v
	}
	children := make([]NodeId, len(n.Children))
	copy(children, n.Children)
	return &NodeInstance{Id: n.Id, Type: n.Type, Props: props, Children: children}
}
