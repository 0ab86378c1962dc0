package graph

import (
	"errors"
	"fmt"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// Builder accumulates nodes from several modules into one graph.
type Builder struct {
	nodes   map[string]*Node
	order   []string
	outputs map[string]Ref
	errs    []error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes:   make(map[string]*Node),
		outputs: make(map[string]Ref),
	}
}

// Module returns a builder scoped to one module name.
func (b *Builder) Module(name string) *ModuleBuilder {
	return &ModuleBuilder{b: b, module: name}
}

// Has reports whether a node with addr has been added.
func (b *Builder) Has(addr Address) bool {
	_, ok := b.nodes[addr.String()]
	return ok
}

// Node returns the node at addr, or nil.
func (b *Builder) Node(addr Address) *Node {
	return b.nodes[addr.String()]
}

// Output publishes a named stack output.
func (b *Builder) Output(name string, ref Ref) {
	if _, dup := b.outputs[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate output %q", name))
		return
	}
	b.outputs[name] = ref
}

// Build validates the accumulated nodes and returns the graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	g := &Graph{
		nodes:   b.nodes,
		order:   append([]string(nil), b.order...),
		outputs: b.outputs,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *Builder) add(n *Node) error {
	key := n.Addr.String()
	if _, dup := b.nodes[key]; dup {
		return fmt.Errorf("duplicate node %s", key)
	}
	if n.Attrs == nil {
		n.Attrs = Attrs{}
	}
	b.nodes[key] = n
	b.order = append(b.order, key)
	return nil
}

// ModuleBuilder adds nodes under one module prefix.
type ModuleBuilder struct {
	b      *Builder
	module string
}

// Name returns the module name.
func (m *ModuleBuilder) Name() string {
	return m.module
}

// Add declares a single node.
func (m *ModuleBuilder) Add(name, resourceType string, attrs Attrs, opts ...NodeOption) (*Node, error) {
	n := &Node{Addr: Addr(m.module, name), Type: resourceType, Attrs: attrs}
	for _, opt := range opts {
		opt(n)
	}
	if err := m.b.add(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddIndexed expands one node template into count concrete nodes
// name[0]..name[count-1]. attrs is called once per index.
func (m *ModuleBuilder) AddIndexed(name, resourceType string, count int, attrs func(i int) Attrs, opts ...NodeOption) ([]*Node, error) {
	if count < 1 {
		return nil, errdefs.Configf(m.module+"."+name, "indexed node needs at least one instance, got %d", count)
	}
	nodes := make([]*Node, 0, count)
	for i := range count {
		n := &Node{Addr: IndexedAddr(m.module, name, i), Type: resourceType, Attrs: attrs(i)}
		for _, opt := range opts {
			opt(n)
		}
		if err := m.b.add(n); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// RequireRef returns a DependencyError when ref is unset or names a node that
// has not been added yet. Modules call it for inputs they cannot be built without.
func (m *ModuleBuilder) RequireRef(consumer, input string, ref Ref) error {
	if ref.IsZero() {
		return &errdefs.DependencyError{
			Node:    Addr(m.module, consumer).String(),
			Message: fmt.Sprintf("input %s is not resolved", input),
		}
	}
	if !m.b.Has(ref.Node) {
		return &errdefs.DependencyError{
			Node:    Addr(m.module, consumer).String(),
			Depends: ref.String(),
			Message: fmt.Sprintf("input %s refers to a node that does not exist", input),
		}
	}
	return nil
}
