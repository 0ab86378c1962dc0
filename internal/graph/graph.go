package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// Graph is a validated resource DAG.
type Graph struct {
	nodes   map[string]*Node
	order   []string
	outputs map[string]Ref
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node at addr, or nil.
func (g *Graph) Node(addr Address) *Node {
	return g.nodes[addr.String()]
}

// Outputs returns the published outputs.
func (g *Graph) Outputs() map[string]Ref {
	out := make(map[string]Ref, len(g.outputs))
	for k, v := range g.outputs {
		out[k] = v
	}
	return out
}

// Dependents returns the nodes that depend directly on addr.
func (g *Graph) Dependents(addr Address) []*Node {
	var out []*Node
	for _, key := range g.order {
		n := g.nodes[key]
		for _, dep := range n.Dependencies() {
			if dep == addr {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// Validate checks that every edge has a producer, that refs do not point at
// the node itself and that there is no cycle.
func (g *Graph) Validate() error {
	for _, key := range g.order {
		n := g.nodes[key]
		for _, dep := range n.Dependencies() {
			if dep == n.Addr {
				return &errdefs.DependencyError{Node: key, Message: "node references its own output"}
			}
			if _, ok := g.nodes[dep.String()]; !ok {
				return &errdefs.DependencyError{Node: key, Depends: dep.String(), Message: "dependency is not part of the graph"}
			}
		}
	}
	for name, ref := range g.outputs {
		if _, ok := g.nodes[ref.Node.String()]; !ok {
			return &errdefs.DependencyError{Node: "output." + name, Depends: ref.String(), Message: "output refers to a missing node"}
		}
	}

	if cycles := g.cycles(); len(cycles) > 0 {
		return &errdefs.DependencyError{
			Node:    cycles[0][0],
			Message: "dependency cycle between " + strings.Join(cycles[0], ", "),
		}
	}
	return nil
}

// TopologicalOrder returns nodes with every dependency before its
// dependents. Ties are broken by insertion order, so the result is stable.
func (g *Graph) TopologicalOrder() []*Node {
	indegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	position := make(map[string]int, len(g.order))
	for i, key := range g.order {
		position[key] = i
		indegree[key] += 0
		for _, dep := range g.nodes[key].Dependencies() {
			indegree[key]++
			dependents[dep.String()] = append(dependents[dep.String()], key)
		}
	}

	var ready []string
	for _, key := range g.order {
		if indegree[key] == 0 {
			ready = append(ready, key)
		}
	}

	out := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		key := ready[0]
		ready = ready[1:]
		out = append(out, g.nodes[key])
		for _, d := range dependents[key] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return out
}

// cycles finds strongly connected components with more than one member
// (Tarjan). Members of each component are sorted.
func (g *Graph) cycles() [][]string {
	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		found   [][]string
	)

	var connect func(v string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, dep := range g.nodes[v].Dependencies() {
			w := dep.String()
			if _, visited := indices[w]; !visited {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				sort.Strings(scc)
				found = append(found, scc)
			}
		}
	}

	for _, key := range g.order {
		if _, visited := indices[key]; !visited {
			connect(key)
		}
	}
	return found
}

// String renders the graph as "addr <- deps" lines for debugging.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, n := range g.TopologicalOrder() {
		deps := n.Dependencies()
		names := make([]string, len(deps))
		for i, d := range deps {
			names[i] = d.String()
		}
		fmt.Fprintf(&sb, "%s (%s)", n.Addr, n.Type)
		if len(names) > 0 {
			fmt.Fprintf(&sb, " <- %s", strings.Join(names, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
