package engine

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

// Action is what apply will do to a resource.
type Action string

const (
	ActionNoOp    Action = "no-op"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
)

// Change is the planned action for one address.
type Change struct {
	Addr      string
	Type      string
	Action    Action
	Reason    string
	Attrs     []string
	Lifecycle graph.Lifecycle
}

// Plan is an ordered list of changes. Graph nodes come first in
// topological order, followed by deletions of recorded resources that are
// no longer declared.
type Plan struct {
	Changes []Change
	Destroy bool

	index map[string]int
}

// Summary counts changes by action.
type Summary struct {
	Create, Update, Replace, Delete, NoOp int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d to add, %d to change, %d to replace, %d to destroy", s.Create, s.Update, s.Replace, s.Delete)
}

// Summary counts the plan's changes.
func (p *Plan) Summary() Summary {
	var s Summary
	for _, c := range p.Changes {
		switch c.Action {
		case ActionCreate:
			s.Create++
		case ActionUpdate:
			s.Update++
		case ActionReplace:
			s.Replace++
		case ActionDelete:
			s.Delete++
		default:
			s.NoOp++
		}
	}
	return s
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	for _, c := range p.Changes {
		if c.Action != ActionNoOp {
			return false
		}
	}
	return true
}

// Change returns the planned change for addr.
func (p *Plan) Change(addr string) (Change, bool) {
	i, ok := p.index[addr]
	if !ok {
		return Change{}, false
	}
	return p.Changes[i], true
}

func (p *Plan) add(c Change) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	p.index[c.Addr] = len(p.Changes)
	p.Changes = append(p.Changes, c)
}

// BuildPlan diffs g against st. It fails with a ConfigurationError before
// any provider call when the plan would destroy a resource whose lifecycle
// forbids it.
func BuildPlan(g *graph.Graph, st *state.State) (*Plan, error) {
	p := &Plan{}
	declared := make(map[string]bool, g.Len())

	for _, n := range g.TopologicalOrder() {
		addr := n.Addr.String()
		declared[addr] = true
		c, err := planNode(p, n, st)
		if err != nil {
			return nil, err
		}
		p.add(c)
	}

	for _, addr := range deletionOrder(st, declared) {
		r, _ := st.Get(addr)
		p.add(Change{Addr: addr, Type: r.Type, Action: ActionDelete, Reason: "no longer declared", Lifecycle: r.Lifecycle})
	}

	if err := checkPreventDestroy(p); err != nil {
		return nil, err
	}
	return p, nil
}

// PlanDestroy plans deletion of every recorded resource. Lifecycle flags
// come from g when the resource is still declared there, otherwise from
// state. g may be nil.
func PlanDestroy(g *graph.Graph, st *state.State) (*Plan, error) {
	p := &Plan{Destroy: true}
	for _, addr := range deletionOrder(st, nil) {
		r, _ := st.Get(addr)
		lc := r.Lifecycle
		if g != nil {
			if a, err := graph.ParseAddress(addr); err == nil {
				if n := g.Node(a); n != nil {
					lc = n.Lifecycle
				}
			}
		}
		p.add(Change{Addr: addr, Type: r.Type, Action: ActionDelete, Reason: "destroy", Lifecycle: lc})
	}

	if err := checkPreventDestroy(p); err != nil {
		return nil, err
	}
	return p, nil
}

func planNode(p *Plan, n *graph.Node, st *state.State) (Change, error) {
	c := Change{Addr: n.Addr.String(), Type: n.Type, Lifecycle: n.Lifecycle}

	prior, ok := st.Get(c.Addr)
	if !ok {
		c.Action = ActionCreate
		return c, nil
	}
	if prior.Tainted {
		c.Action, c.Reason = ActionReplace, "tainted by a failed create"
		return c, nil
	}
	if prior.Type != n.Type {
		c.Action, c.Reason = ActionReplace, "resource type changed"
		return c, nil
	}

	config, err := state.Canonical(n.Attrs)
	if err != nil {
		return Change{}, fmt.Errorf("%s: %w", c.Addr, err)
	}
	hash, err := state.HashInputs(config)
	if err != nil {
		return Change{}, fmt.Errorf("%s: %w", c.Addr, err)
	}

	changed := changedAttrs(prior.Config, config)
	for _, attr := range n.ForceNew {
		if contains(changed, attr) {
			c.Action, c.Reason, c.Attrs = ActionReplace, "forces replacement: "+attr, changed
			return c, nil
		}
	}
	if len(prior.Drift) > 0 {
		for _, attr := range n.ForceNew {
			if contains(prior.Drift, attr) {
				c.Action, c.Reason, c.Attrs = ActionReplace, "drifted: "+attr+" forces replacement", prior.Drift
				return c, nil
			}
		}
		c.Action, c.Reason, c.Attrs = ActionUpdate, "drifted from recorded inputs", mergeAttrs(changed, prior.Drift)
		return c, nil
	}
	if hash != prior.InputsHash {
		c.Action, c.Attrs = ActionUpdate, changed
		return c, nil
	}

	// Unchanged declaration, but an upstream resource gets a new identity.
	for _, dep := range n.Dependencies() {
		dc, ok := p.Change(dep.String())
		if !ok || (dc.Action != ActionCreate && dc.Action != ActionReplace) {
			continue
		}
		for _, attr := range n.ForceNew {
			for _, ref := range graph.Refs(n.Attrs[attr]) {
				if ref.Node == dep {
					c.Action, c.Reason = ActionReplace, "replacement of "+dep.String()+" forces replacement: "+attr
					return c, nil
				}
			}
		}
		c.Action, c.Reason = ActionUpdate, "depends on replaced "+dep.String()
		return c, nil
	}

	c.Action = ActionNoOp
	return c, nil
}

func changedAttrs(prior, next map[string]any) []string {
	var out []string
	for k, v := range next {
		if pv, ok := prior[k]; !ok || !reflect.DeepEqual(pv, v) {
			out = append(out, k)
		}
	}
	for k := range prior {
		if _, ok := next[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func mergeAttrs(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		if !contains(out, s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// deletionOrder returns recorded addresses not in keep, dependents before
// their dependencies. Ties break alphabetically.
func deletionOrder(st *state.State, keep map[string]bool) []string {
	doomed := make(map[string]bool)
	for _, addr := range st.Addresses() {
		if !keep[addr] {
			doomed[addr] = true
		}
	}

	// blockers[a] counts doomed resources that depend on a.
	blockers := make(map[string]int, len(doomed))
	for addr := range doomed {
		r, _ := st.Get(addr)
		for _, dep := range r.Dependencies {
			if doomed[dep] {
				blockers[dep]++
			}
		}
	}

	var out []string
	done := make(map[string]bool, len(doomed))
	for len(out) < len(doomed) {
		var ready []string
		for addr := range doomed {
			if !done[addr] && blockers[addr] == 0 {
				ready = append(ready, addr)
			}
		}
		if len(ready) == 0 {
			// Recorded dependencies are acyclic unless state was edited by
			// hand; fall back to address order for the rest.
			for _, addr := range st.Addresses() {
				if doomed[addr] && !done[addr] {
					ready = append(ready, addr)
				}
			}
		}
		sort.Strings(ready)
		for _, addr := range ready {
			done[addr] = true
			out = append(out, addr)
			r, _ := st.Get(addr)
			for _, dep := range r.Dependencies {
				if doomed[dep] {
					blockers[dep]--
				}
			}
		}
	}
	return out
}

func checkPreventDestroy(p *Plan) error {
	var errs []error
	for _, c := range p.Changes {
		if c.Lifecycle.PreventDestroy && (c.Action == ActionDelete || c.Action == ActionReplace) {
			errs = append(errs, &errdefs.ConfigurationError{
				Field:   c.Addr,
				Message: fmt.Sprintf("lifecycle prevents destroy, refusing to %s", c.Action),
			})
		}
	}
	return errors.Join(errs...)
}
