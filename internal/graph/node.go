package graph

import "sort"

// Lifecycle constrains how the engine replaces and destroys a node.
type Lifecycle struct {
	PreventDestroy      bool `json:"prevent_destroy,omitempty"`
	CreateBeforeDestroy bool `json:"create_before_destroy,omitempty"`
}

// Node is one declared resource.
type Node struct {
	Addr      Address
	Type      string
	Attrs     Attrs
	DependsOn []Address
	Lifecycle Lifecycle
	// ForceNew names attributes whose change requires replacement
	// instead of an in-place update.
	ForceNew []string
}

// Ref returns a reference to one of the node's computed attributes.
func (n *Node) Ref(attr string) Ref {
	return Ref{Node: n.Addr, Attr: attr}
}

// Dependencies returns the producers of every ref in the node's attributes
// plus its explicit DependsOn edges, deduplicated and sorted.
func (n *Node) Dependencies() []Address {
	seen := make(map[string]Address)
	for _, r := range Refs(map[string]any(n.Attrs)) {
		seen[r.Node.String()] = r.Node
	}
	for _, a := range n.DependsOn {
		seen[a.String()] = a
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Address, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

// NodeOption customises a node added through a builder.
type NodeOption func(*Node)

// WithDependsOn adds explicit ordering edges that carry no data.
func WithDependsOn(addrs ...Address) NodeOption {
	return func(n *Node) {
		n.DependsOn = append(n.DependsOn, addrs...)
	}
}

// WithLifecycle sets the node's lifecycle policy.
func WithLifecycle(l Lifecycle) NodeOption {
	return func(n *Node) {
		n.Lifecycle = l
	}
}

// WithForceNew marks attributes that cannot be updated in place.
func WithForceNew(attrs ...string) NodeOption {
	return func(n *Node) {
		n.ForceNew = append(n.ForceNew, attrs...)
	}
}
