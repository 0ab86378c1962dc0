// Package graph models a deployment as an explicit resource dependency graph.
//
// A [Node] is one provider resource: an [Address], a resource type, an
// attribute map and lifecycle flags. Attribute values may contain [Ref]
// leaves pointing at another node's computed output; those refs, plus
// explicit DependsOn edges, are the graph's edges. Modules add nodes through
// a [Builder], which expands indexed templates (one node per AZ) and
// validates on Build that every ref has a producer and that the edges form a
// DAG.
//
// Refs are never dereferenced at build time. The apply engine resolves a
// node's refs exactly once, after every producer has been applied, with
// [Resolve].
package graph
