package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/retry"
)

// Status is the result of one planned change.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome reports what happened to one address.
type Outcome struct {
	Addr   string
	Action Action
	Status Status
	Err    error
}

// Report collects the outcomes of a run, sorted by address.
type Report struct {
	Outcomes []Outcome
}

// Outcome returns the outcome for addr.
func (r *Report) Outcome(addr string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Addr == addr {
			return o, true
		}
	}
	return Outcome{}, false
}

// Count returns how many outcomes have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

type task struct {
	change Change
	deps   []string
	// exec is nil for changes that need no provider call.
	exec func(ctx context.Context) (Status, error)
}

type run struct {
	e        *Engine
	mu       sync.Mutex
	st       *state.State
	outcomes map[string]Outcome
	deposed  []Change
	dirty    bool
	saveErrs []error
}

// Apply executes plan against g, mutating st and saving it after every
// completed node. On cancellation no new node starts; calls already in
// flight finish and are recorded, and the returned error wraps ctx.Err().
func (e *Engine) Apply(ctx context.Context, g *graph.Graph, st *state.State, plan *Plan) (*Report, error) {
	if plan.Destroy {
		return nil, &errdefs.ConfigurationError{Message: "cannot apply a destroy plan, use Destroy"}
	}
	r := &run{e: e, st: st, outcomes: make(map[string]Outcome)}
	e.observer.Event(Event{Type: EventRunStarted, Message: "apply: " + plan.Summary().String()})

	var tasks []*task
	for _, n := range g.TopologicalOrder() {
		c, ok := plan.Change(n.Addr.String())
		if !ok {
			return nil, &errdefs.ConfigurationError{Field: n.Addr.String(), Message: "not in plan, the plan is stale"}
		}
		t := &task{change: c, deps: addrStrings(n.Dependencies())}
		if c.Action != ActionNoOp {
			t.exec = func(ctx context.Context) (Status, error) {
				return r.applyNode(ctx, n, c)
			}
		}
		tasks = append(tasks, t)
	}
	r.schedule(ctx, tasks)

	if ctx.Err() == nil {
		r.schedule(ctx, r.deleteTasks(plan, r.deposed))
	}

	r.publishOutputs(ctx, g)
	return r.finishRun(ctx, "apply")
}

// Destroy deletes every resource in plan in reverse dependency order.
func (e *Engine) Destroy(ctx context.Context, st *state.State, plan *Plan) (*Report, error) {
	r := &run{e: e, st: st, outcomes: make(map[string]Outcome)}
	e.observer.Event(Event{Type: EventRunStarted, Message: "destroy: " + plan.Summary().String()})

	r.schedule(ctx, r.deleteTasks(plan, nil))

	r.mu.Lock()
	if len(r.st.Resources) == 0 && len(r.st.Outputs) > 0 {
		r.st.Outputs = make(map[string]any)
		r.saveLocked(ctx)
	}
	r.mu.Unlock()
	return r.finishRun(ctx, "destroy")
}

// Refresh reads every recorded resource and updates its outputs. Inputs
// whose live value differs are recorded as drift, which the next plan turns
// into an update or, for a ForceNew attribute, a replacement. Resources the
// provider no longer knows are dropped from st and returned.
func (e *Engine) Refresh(ctx context.Context, st *state.State) ([]string, error) {
	var (
		mu      sync.Mutex
		removed []string
		errs    []error
		wg      sync.WaitGroup
		sem     = make(chan struct{}, e.parallelism)
	)
	for _, addr := range st.Addresses() {
		prior, _ := st.Get(addr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			a, _ := graph.ParseAddress(addr)
			res, err := e.provider.Read(ctx, provider.Request{
				Addr: a, Type: prior.Type, ID: prior.ID,
				PriorInputs: prior.Inputs, PriorOutputs: prior.Outputs,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, provider.ErrNotFound):
				st.Remove(addr)
				removed = append(removed, addr)
			case err != nil:
				errs = append(errs, fmt.Errorf("refresh %s: %w", addr, err))
			default:
				outputs, cerr := canonicalOutputs(res)
				if cerr != nil {
					errs = append(errs, cerr)
					return
				}
				prior.Outputs = outputs
				if !strings.HasSuffix(addr, DeposedSuffix) {
					prior.Drift = driftedAttrs(prior.Inputs, outputs)
				}
			}
		}()
	}
	wg.Wait()
	sort.Strings(removed)
	return removed, errors.Join(errs...)
}

func (r *run) schedule(ctx context.Context, tasks []*task) {
	done := make(map[string]chan struct{}, len(tasks))
	for _, t := range tasks {
		done[t.change.Addr] = make(chan struct{})
	}
	sem := make(chan struct{}, r.e.parallelism)

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[t.change.Addr])

			for _, d := range t.deps {
				if ch, ok := done[d]; ok {
					<-ch
				}
			}
			if dep := r.failedDependency(t.deps); dep != "" {
				r.finish(t, StatusSkipped, fmt.Errorf("dependency %s did not complete", dep))
				return
			}
			if t.exec == nil {
				r.finish(t, StatusUnchanged, nil)
				return
			}

			select {
			case <-ctx.Done():
				r.finish(t, StatusSkipped, ctx.Err())
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				r.finish(t, StatusSkipped, err)
				return
			}

			status, err := t.exec(ctx)
			if err != nil {
				status = StatusFailed
			}
			r.finish(t, status, err)
		}()
	}
	wg.Wait()
}

func (r *run) failedDependency(deps []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range deps {
		if o, ok := r.outcomes[d]; ok && (o.Status == StatusFailed || o.Status == StatusSkipped) {
			return d
		}
	}
	return ""
}

func (r *run) finish(t *task, status Status, err error) {
	r.mu.Lock()
	r.outcomes[t.change.Addr] = Outcome{Addr: t.change.Addr, Action: t.change.Action, Status: status, Err: err}
	r.mu.Unlock()

	r.e.metrics.observeNode(t.change.Action, status)
	switch status {
	case StatusFailed:
		resourceEvent(r.e.observer, EventResourceFailed, t.change.Addr, "%s failed: %v", t.change.Action, err)
	case StatusSkipped:
		resourceEvent(r.e.observer, EventResourceSkipped, t.change.Addr, "%s skipped: %v", t.change.Action, err)
	}
}

func (r *run) applyNode(ctx context.Context, n *graph.Node, c Change) (Status, error) {
	addr := n.Addr.String()

	r.mu.Lock()
	inputs, err := graph.Resolve(n.Addr, n.Attrs, r.st.Lookup)
	prior, hasPrior := r.st.Get(addr)
	r.mu.Unlock()
	if err != nil {
		return StatusFailed, err
	}

	config, err := state.Canonical(n.Attrs)
	if err != nil {
		return StatusFailed, err
	}
	resolved, err := state.Canonical(inputs)
	if err != nil {
		return StatusFailed, err
	}
	hash, err := state.HashInputs(config)
	if err != nil {
		return StatusFailed, err
	}
	record := func(res provider.Result, tainted bool) error {
		outputs, err := canonicalOutputs(res)
		if err != nil {
			return err
		}
		r.record(ctx, addr, &state.ResourceState{
			Type:         n.Type,
			ID:           res.ID,
			Config:       config,
			InputsHash:   hash,
			Inputs:       resolved,
			Outputs:      outputs,
			Dependencies: addrStrings(n.Dependencies()),
			Lifecycle:    n.Lifecycle,
			Tainted:      tainted,
		})
		return nil
	}
	create := func() error {
		resourceEvent(r.e.observer, EventResourceCreating, addr, "creating %s", n.Type)
		var res provider.Result
		err := r.call(ctx, addr, n.Type, provider.OpCreate, func(callCtx context.Context) error {
			var err error
			res, err = r.e.provider.Create(callCtx, provider.Request{Addr: n.Addr, Type: n.Type, Inputs: inputs})
			return err
		})
		if err != nil {
			if res.ID != "" {
				_ = record(res, true)
			}
			return err
		}
		if err := record(res, false); err != nil {
			return err
		}
		resourceEvent(r.e.observer, EventResourceCreated, addr, "created %s id=%s", n.Type, res.ID)
		return nil
	}

	switch c.Action {
	case ActionCreate:
		if err := create(); err != nil {
			return StatusFailed, err
		}

	case ActionUpdate:
		if !hasPrior {
			return StatusFailed, &errdefs.DependencyError{Node: addr, Message: "planned update has no recorded resource"}
		}
		if len(prior.Drift) == 0 && reflect.DeepEqual(resolved, prior.Inputs) {
			// Only the declaration changed shape; nothing to send.
			if err := record(provider.Result{ID: prior.ID, Outputs: prior.Outputs}, false); err != nil {
				return StatusFailed, err
			}
			resourceEvent(r.e.observer, EventResourceUnchanged, addr, "resolved inputs unchanged")
			return StatusUnchanged, nil
		}
		resourceEvent(r.e.observer, EventResourceUpdating, addr, "updating %s id=%s", n.Type, prior.ID)
		var res provider.Result
		err := r.call(ctx, addr, n.Type, provider.OpUpdate, func(callCtx context.Context) error {
			var err error
			res, err = r.e.provider.Update(callCtx, provider.Request{
				Addr: n.Addr, Type: n.Type, ID: prior.ID, Inputs: inputs,
				PriorInputs: prior.Inputs, PriorOutputs: prior.Outputs,
			})
			return err
		})
		if err != nil {
			return StatusFailed, err
		}
		if res.ID == "" {
			res.ID = prior.ID
		}
		if err := record(res, false); err != nil {
			return StatusFailed, err
		}
		resourceEvent(r.e.observer, EventResourceUpdated, addr, "updated %s", n.Type)

	case ActionReplace:
		if !hasPrior {
			return StatusFailed, &errdefs.DependencyError{Node: addr, Message: "planned replace has no recorded resource"}
		}
		resourceEvent(r.e.observer, EventResourceReplacing, addr, "replacing %s id=%s (%s)", n.Type, prior.ID, c.Reason)
		if n.Lifecycle.CreateBeforeDestroy {
			// The old resource stays live until dependents have moved to
			// the replacement; the delete phase removes it.
			r.depose(ctx, addr, prior)
			if err := create(); err != nil {
				r.undepose(ctx, addr)
				return StatusFailed, err
			}
		} else {
			if err := r.deleteResource(ctx, addr, prior); err != nil {
				return StatusFailed, err
			}
			r.forget(ctx, addr)
			if err := create(); err != nil {
				return StatusFailed, err
			}
		}
	}
	return StatusApplied, nil
}

// deleteTasks turns the plan's delete changes and the resources deposed
// during this run into tasks where a resource waits for every doomed
// resource that depends on it.
func (r *run) deleteTasks(plan *Plan, deposed []Change) []*task {
	var changes []Change
	for _, c := range plan.Changes {
		if c.Action == ActionDelete {
			changes = append(changes, c)
		}
	}
	changes = append(changes, deposed...)

	doomed := make(map[string]bool, len(changes))
	for _, c := range changes {
		doomed[c.Addr] = true
	}

	waitFor := make(map[string][]string)
	r.mu.Lock()
	for addr := range doomed {
		rs, ok := r.st.Get(addr)
		if !ok {
			continue
		}
		for _, dep := range rs.Dependencies {
			if doomed[dep] {
				waitFor[dep] = append(waitFor[dep], addr)
			}
		}
	}
	r.mu.Unlock()

	var tasks []*task
	for _, c := range changes {
		sort.Strings(waitFor[c.Addr])
		tasks = append(tasks, &task{
			change: c,
			deps:   waitFor[c.Addr],
			exec: func(ctx context.Context) (Status, error) {
				r.mu.Lock()
				prior, ok := r.st.Get(c.Addr)
				r.mu.Unlock()
				if !ok {
					return StatusUnchanged, nil
				}
				resourceEvent(r.e.observer, EventResourceDeleting, c.Addr, "deleting %s id=%s", prior.Type, prior.ID)
				if err := r.deleteResource(ctx, c.Addr, prior); err != nil {
					return StatusFailed, err
				}
				r.forget(ctx, c.Addr)
				resourceEvent(r.e.observer, EventResourceDeleted, c.Addr, "deleted %s", prior.Type)
				return StatusApplied, nil
			},
		})
	}
	return tasks
}

func (r *run) deleteResource(ctx context.Context, addr string, prior *state.ResourceState) error {
	a, _ := graph.ParseAddress(strings.TrimSuffix(addr, DeposedSuffix))
	err := r.call(ctx, addr, prior.Type, provider.OpDelete, func(callCtx context.Context) error {
		return r.e.provider.Delete(callCtx, provider.Request{
			Addr: a, Type: prior.Type, ID: prior.ID,
			PriorInputs: prior.Inputs, PriorOutputs: prior.Outputs,
		})
	})
	if errors.Is(err, provider.ErrNotFound) {
		return nil
	}
	return err
}

// call runs fn with retries for retryable provider errors. fn receives a
// context that is not cancelled with ctx, so an in-flight call completes;
// cancellation of ctx only stops further retries.
func (r *run) call(ctx context.Context, addr, resourceType string, op provider.Operation, fn func(context.Context) error) error {
	callCtx := context.WithoutCancel(ctx)
	opts := []retry.Option{
		retry.WithRetryIf(errdefs.IsRetryable),
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			r.e.metrics.observeRetry(resourceType, string(op))
			resourceEvent(r.e.observer, EventResourceRetrying, addr, "%s attempt %d failed, retrying in %s: %v", op, attempt, delay, err)
		}),
	}

	start := time.Now()
	err := retry.WithExponentialBackoff(ctx, func() error {
		return fn(callCtx)
	}, append(opts, r.e.retryOpts...)...)
	r.e.metrics.observeCall(resourceType, string(op), time.Since(start), err)

	if err == nil {
		return nil
	}
	return wrapProviderError(addr, op, err)
}

func wrapProviderError(addr string, op provider.Operation, err error) error {
	var apiErr *errdefs.ProviderAPIError
	if errors.As(err, &apiErr) || errdefs.IsValidationTimeout(err) || errdefs.IsConfiguration(err) ||
		errdefs.IsDependency(err) || errors.Is(err, provider.ErrNotFound) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", op, addr, err)
	}
	return &errdefs.ProviderAPIError{Node: addr, Operation: string(op), Err: err}
}

func (r *run) record(ctx context.Context, addr string, rs *state.ResourceState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Set(addr, rs)
	r.saveLocked(ctx)
}

// DeposedSuffix marks a replaced resource awaiting deletion in state.
const DeposedSuffix = "#deposed"

func (r *run) depose(ctx context.Context, addr string, prior *state.ResourceState) {
	key := addr + DeposedSuffix
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Set(key, prior)
	r.deposed = append(r.deposed, Change{
		Addr: key, Type: prior.Type, Action: ActionDelete,
		Reason: "deposed by create-before-destroy replacement",
	})
	r.saveLocked(ctx)
}

// undepose restores the old resource after a failed replacement create.
func (r *run) undepose(ctx context.Context, addr string) {
	key := addr + DeposedSuffix
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, ok := r.st.Get(key)
	if !ok {
		return
	}
	if cur, exists := r.st.Get(addr); !exists || cur.ID == prior.ID {
		r.st.Set(addr, prior)
		r.st.Remove(key)
		kept := r.deposed[:0]
		for _, c := range r.deposed {
			if c.Addr != key {
				kept = append(kept, c)
			}
		}
		r.deposed = kept
		r.saveLocked(ctx)
	}
}

func (r *run) forget(ctx context.Context, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Remove(addr)
	r.saveLocked(ctx)
}

func (r *run) saveLocked(ctx context.Context) {
	r.dirty = true
	r.st.Serial++
	if err := r.e.backend.Save(context.WithoutCancel(ctx), r.st); err != nil {
		r.saveErrs = append(r.saveErrs, err)
		r.e.observer.Printf("failed to save state: %v", err)
		return
	}
	r.e.observer.Event(Event{Type: EventStateSaved, Fields: map[string]string{"serial": fmt.Sprint(r.st.Serial)}})
}

func (r *run) publishOutputs(ctx context.Context, g *graph.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outputs := make(map[string]any)
	for name, ref := range g.Outputs() {
		if v, ok := r.st.Lookup(ref); ok {
			outputs[name] = v
		}
	}
	if reflect.DeepEqual(outputs, r.st.Outputs) {
		return
	}
	r.st.Outputs = outputs
	r.saveLocked(ctx)
}

func (r *run) finishRun(ctx context.Context, name string) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dirty && len(r.saveErrs) > 0 {
		// Retry once so the final state reaches the backend if possible.
		r.saveErrs = nil
		r.saveLocked(ctx)
	}

	report := &Report{}
	var errs []error
	for _, o := range r.outcomes {
		report.Outcomes = append(report.Outcomes, o)
		if o.Status == StatusFailed {
			errs = append(errs, o.Err)
		}
	}
	sort.Slice(report.Outcomes, func(i, j int) bool { return report.Outcomes[i].Addr < report.Outcomes[j].Addr })
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })

	if err := ctx.Err(); err != nil {
		errs = append([]error{err}, errs...)
	}
	errs = append(errs, r.saveErrs...)

	err := errors.Join(errs...)
	if err != nil {
		r.e.observer.Event(Event{Type: EventRunFailed, Message: fmt.Sprintf("%s failed: %d failed, %d skipped", name, report.Count(StatusFailed), report.Count(StatusSkipped))})
		return report, err
	}
	r.e.observer.Event(Event{Type: EventRunCompleted, Message: fmt.Sprintf("%s complete: %d applied, %d unchanged", name, report.Count(StatusApplied), report.Count(StatusUnchanged))})
	return report, nil
}

// driftedAttrs returns the recorded inputs whose live value differs.
// Attributes the provider does not report are not compared.
func driftedAttrs(inputs, live map[string]any) []string {
	var out []string
	for k, v := range inputs {
		if lv, ok := live[k]; ok && !reflect.DeepEqual(lv, v) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func canonicalOutputs(res provider.Result) (map[string]any, error) {
	outputs, err := state.Canonical(res.Outputs)
	if err != nil {
		return nil, err
	}
	if _, ok := outputs["id"]; !ok && res.ID != "" {
		outputs["id"] = res.ID
	}
	return outputs, nil
}

func addrStrings(addrs []graph.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
