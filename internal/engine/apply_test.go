package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provider/fake"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/retry"
)

func TestApply_CreatesInDependencyOrder(t *testing.T) {
	t.Parallel()
	p := fake.New()
	backend := state.NewMemoryBackend()
	e := New(p, backend)
	st := state.New()

	report, err := applyStack(t, e, defaultStack(), st)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Count(StatusApplied))

	calls := p.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "net.vpc", calls[0].Addr)

	vpc, ok := st.Get("net.vpc")
	require.True(t, ok)
	for _, addr := range []string{"net.subnet[0]", "net.subnet[1]"} {
		sub, ok := st.Get(addr)
		require.True(t, ok, addr)
		assert.Equal(t, vpc.Outputs["VpcId"], sub.Inputs["VpcId"])
		assert.Equal(t, "${net.vpc.VpcId}", sub.Config["VpcId"])
		assert.Equal(t, []string{"net.vpc"}, sub.Dependencies)
	}
	assert.Equal(t, vpc.Outputs["VpcId"], st.Outputs["vpc_id"])

	saved, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved.Resources, 3)
	assert.GreaterOrEqual(t, backend.Saves(), 3)
}

func TestApply_ReapplyIsNoOp(t *testing.T) {
	t.Parallel()
	p := fake.New()
	backend := state.NewMemoryBackend()
	e := New(p, backend)
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)
	calls := p.MutatingCalls()
	saves := backend.Saves()

	g := defaultStack().build(t)
	plan, err := BuildPlan(g, st)
	require.NoError(t, err)
	assert.True(t, plan.Empty())

	report, err := e.Apply(context.Background(), g, st, plan)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Count(StatusUnchanged))
	assert.Equal(t, calls, p.MutatingCalls())
	assert.Equal(t, saves, backend.Saves())
}

func TestApply_UpdateInPlace(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)
	before, _ := st.Get("net.vpc")
	id := before.ID

	s := defaultStack()
	s.vpcTags = map[string]any{"Name": "dev-vpc"}
	g := s.build(t)
	plan, err := BuildPlan(g, st)
	require.NoError(t, err)

	c, _ := plan.Change("net.vpc")
	assert.Equal(t, ActionUpdate, c.Action)
	assert.Equal(t, []string{"Tags"}, c.Attrs)
	sub, _ := plan.Change("net.subnet[0]")
	assert.Equal(t, ActionNoOp, sub.Action)

	_, err = e.Apply(context.Background(), g, st, plan)
	require.NoError(t, err)

	after, _ := st.Get("net.vpc")
	assert.Equal(t, id, after.ID)
	assert.Equal(t, map[string]any{"Name": "dev-vpc"}, after.Inputs["Tags"])
	assert.Equal(t, []provider.Operation{provider.OpCreate, provider.OpUpdate}, p.CallsFor("net.vpc"))
}

func TestApply_ReplaceOrdering(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		lifecycle graph.Lifecycle
		want      []provider.Operation
	}{
		{"destroy before create", graph.Lifecycle{}, []provider.Operation{provider.OpCreate, provider.OpDelete, provider.OpCreate}},
		{"create before destroy", graph.Lifecycle{CreateBeforeDestroy: true}, []provider.Operation{provider.OpCreate, provider.OpCreate, provider.OpDelete}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := fake.New()
			e := New(p, state.NewMemoryBackend())
			st := state.New()
			s := defaultStack()
			s.subnetLifecycle = tt.lifecycle
			_, err := applyStack(t, e, s, st)
			require.NoError(t, err)
			old, _ := st.Get("net.subnet[0]")
			oldID := old.ID

			s.subnets = []string{"10.0.9.0/24", "10.0.2.0/24"}
			_, err = applyStack(t, e, s, st)
			require.NoError(t, err)

			assert.Equal(t, tt.want, p.CallsFor("net.subnet[0]"))
			assert.Equal(t, []provider.Operation{provider.OpCreate}, p.CallsFor("net.subnet[1]"))
			replaced, _ := st.Get("net.subnet[0]")
			assert.NotEqual(t, oldID, replaced.ID)
			assert.False(t, p.Exists(oldID))
			assert.True(t, p.Exists(replaced.ID))
			assert.NotContains(t, st.Addresses(), "net.subnet[0]"+DeposedSuffix)
		})
	}
}

func TestApply_CreateBeforeDestroyDeletesOldAfterDependents(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	s := defaultStack()
	s.vpcLifecycle = graph.Lifecycle{CreateBeforeDestroy: true}
	_, err := applyStack(t, e, s, st)
	require.NoError(t, err)
	old, _ := st.Get("net.vpc")

	s.vpcCIDR = "10.1.0.0/16"
	report, err := applyStack(t, e, s, st)
	require.NoError(t, err)

	deleted := -1
	lastSubnetCreate := -1
	for i, c := range p.Calls() {
		if c.Op == provider.OpDelete && c.ID == old.ID {
			deleted = i
		}
		if c.Op == provider.OpCreate && c.Type == provider.TypeSubnet {
			lastSubnetCreate = i
		}
	}
	require.GreaterOrEqual(t, deleted, 0)
	assert.Greater(t, deleted, lastSubnetCreate)
	assert.False(t, p.Exists(old.ID))

	o, ok := report.Outcome("net.vpc" + DeposedSuffix)
	require.True(t, ok)
	assert.Equal(t, StatusApplied, o.Status)
	assert.NotContains(t, st.Addresses(), "net.vpc"+DeposedSuffix)
}

func TestApply_DeposedResourceSurvivesFailedDeleteAndIsPlannedNext(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend(), WithRetryOptions(retry.WithMaxRetries(0)))
	st := state.New()
	s := defaultStack()
	s.vpcLifecycle = graph.Lifecycle{CreateBeforeDestroy: true}
	_, err := applyStack(t, e, s, st)
	require.NoError(t, err)

	p.FailOn(provider.OpDelete, "net.vpc", errors.New("dependency violation"))
	s.vpcCIDR = "10.1.0.0/16"
	_, err = applyStack(t, e, s, st)
	require.Error(t, err)
	assert.Contains(t, st.Addresses(), "net.vpc"+DeposedSuffix)

	p.ClearFailures()
	plan, err := BuildPlan(s.build(t), st)
	require.NoError(t, err)
	c, ok := plan.Change("net.vpc" + DeposedSuffix)
	require.True(t, ok)
	assert.Equal(t, ActionDelete, c.Action)
}

func TestApply_ConcurrentCreateBeforeDestroyFailureKeepsSiblingDeposed(t *testing.T) {
	t.Parallel()
	p := &barrierProvider{Provider: fake.New()}
	e := New(p, state.NewMemoryBackend(), WithRetryOptions(retry.WithMaxRetries(0)))
	st := state.New()
	s := defaultStack()
	s.subnetLifecycle = graph.Lifecycle{CreateBeforeDestroy: true}
	_, err := applyStack(t, e, s, st)
	require.NoError(t, err)
	old0, _ := st.Get("net.subnet[0]")
	old1, _ := st.Get("net.subnet[1]")

	// Both replacements are deposed before either create returns.
	p.gate = &sync.WaitGroup{}
	p.gate.Add(2)
	p.FailOn(provider.OpCreate, "net.subnet[1]", errors.New("subnet conflict"))
	s.subnets = []string{"10.0.3.0/24", "10.0.4.0/24"}
	report, err := applyStack(t, e, s, st)
	require.Error(t, err)

	o0, _ := report.Outcome("net.subnet[0]")
	assert.Equal(t, StatusApplied, o0.Status)
	cur0, ok := st.Get("net.subnet[0]")
	require.True(t, ok)
	assert.NotEqual(t, old0.ID, cur0.ID)
	assert.False(t, p.Exists(old0.ID))
	assert.NotContains(t, st.Addresses(), "net.subnet[0]"+DeposedSuffix)

	o1, _ := report.Outcome("net.subnet[1]")
	assert.Equal(t, StatusFailed, o1.Status)
	cur1, ok := st.Get("net.subnet[1]")
	require.True(t, ok)
	assert.Equal(t, old1.ID, cur1.ID)
	assert.True(t, p.Exists(old1.ID))
	assert.NotContains(t, st.Addresses(), "net.subnet[1]"+DeposedSuffix)
}

func TestRun_UndeposeRemovesOnlyItsOwnEntry(t *testing.T) {
	t.Parallel()
	st := state.New()
	r := &run{e: New(fake.New(), state.NewMemoryBackend()), st: st, outcomes: make(map[string]Outcome)}
	ctx := context.Background()

	r.depose(ctx, "net.subnet[0]", &state.ResourceState{Type: provider.TypeSubnet, ID: "subnet-0"})
	r.depose(ctx, "net.subnet[1]", &state.ResourceState{Type: provider.TypeSubnet, ID: "subnet-1"})
	r.undepose(ctx, "net.subnet[0]")

	require.Len(t, r.deposed, 1)
	assert.Equal(t, "net.subnet[1]"+DeposedSuffix, r.deposed[0].Addr)
	restored, ok := st.Get("net.subnet[0]")
	require.True(t, ok)
	assert.Equal(t, "subnet-0", restored.ID)
	assert.Contains(t, st.Addresses(), "net.subnet[1]"+DeposedSuffix)
}

func TestApply_ReplacementCascadesThroughForceNewRefs(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)

	s := defaultStack()
	s.vpcCIDR = "10.1.0.0/16"
	g := s.build(t)
	plan, err := BuildPlan(g, st)
	require.NoError(t, err)

	for _, addr := range []string{"net.vpc", "net.subnet[0]", "net.subnet[1]"} {
		c, ok := plan.Change(addr)
		require.True(t, ok)
		assert.Equal(t, ActionReplace, c.Action, addr)
	}
	sub, _ := plan.Change("net.subnet[0]")
	assert.Equal(t, "replacement of net.vpc forces replacement: VpcId", sub.Reason)
}

func TestApply_FailedDependencySkipsDependents(t *testing.T) {
	t.Parallel()
	p := fake.New()
	p.FailOn(provider.OpCreate, "net.vpc", errors.New("vpc limit exceeded"))
	e := New(p, state.NewMemoryBackend())
	st := state.New()

	report, err := applyStack(t, e, defaultStack(), st)

	require.Error(t, err)
	var apiErr *errdefs.ProviderAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "net.vpc", apiErr.Node)
	assert.Equal(t, "create", apiErr.Operation)
	assert.False(t, apiErr.Retryable)

	vpc, _ := report.Outcome("net.vpc")
	assert.Equal(t, StatusFailed, vpc.Status)
	for _, addr := range []string{"net.subnet[0]", "net.subnet[1]"} {
		o, ok := report.Outcome(addr)
		require.True(t, ok)
		assert.Equal(t, StatusSkipped, o.Status)
		assert.Empty(t, p.CallsFor(addr))
	}
	assert.Empty(t, st.Resources)
	assert.NotContains(t, st.Outputs, "vpc_id")
}

func TestApply_RetriesRetryableErrors(t *testing.T) {
	t.Parallel()
	p := &flakyProvider{Provider: fake.New(), n: 2}
	m := NewMetrics()
	e := New(p, state.NewMemoryBackend(), WithMetrics(m),
		WithRetryOptions(retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(2*time.Millisecond)))
	st := state.New()

	_, err := applyStack(t, e, defaultStack(), st)

	require.NoError(t, err)
	assert.Len(t, st.Resources, 3)
	assert.Equal(t, 3, p.attempts["net.vpc"])
}

func TestApply_RetryExhaustion(t *testing.T) {
	t.Parallel()
	p := &flakyProvider{Provider: fake.New(), n: 100}
	e := New(p, state.NewMemoryBackend(),
		WithRetryOptions(retry.WithMaxRetries(2), retry.WithInitialDelay(time.Millisecond)))

	_, err := applyStack(t, e, defaultStack(), state.New())

	require.Error(t, err)
	assert.True(t, errdefs.IsRetryable(err))
	assert.ErrorContains(t, err, "operation failed after 3 attempts")
}

func TestApply_BoundsParallelism(t *testing.T) {
	t.Parallel()
	p := fake.New()
	p.Delay = 20 * time.Millisecond
	e := New(p, state.NewMemoryBackend(), WithParallelism(3))

	s := defaultStack()
	s.subnets = nil
	for i := range 12 {
		s.subnets = append(s.subnets, fmt.Sprintf("10.0.%d.0/24", i+1))
	}
	_, err := applyStack(t, e, s, state.New())

	require.NoError(t, err)
	assert.LessOrEqual(t, p.MaxConcurrent(), 3)
	assert.Equal(t, 13, p.MutatingCalls())
}

func TestApply_CancellationFinishesInFlightAndStopsNewNodes(t *testing.T) {
	t.Parallel()
	p := fake.New()
	p.Delay = 100 * time.Millisecond
	backend := state.NewMemoryBackend()
	e := New(p, backend)
	st := state.New()
	g := defaultStack().build(t)
	plan, err := BuildPlan(g, st)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	report, err := e.Apply(ctx, g, st, plan)

	assert.ErrorIs(t, err, context.Canceled)
	vpc, _ := report.Outcome("net.vpc")
	assert.Equal(t, StatusApplied, vpc.Status)
	for _, addr := range []string{"net.subnet[0]", "net.subnet[1]"} {
		o, _ := report.Outcome(addr)
		assert.Equal(t, StatusSkipped, o.Status)
		assert.Empty(t, p.CallsFor(addr))
	}

	saved, err := backend.Load(context.Background())
	require.NoError(t, err)
	_, ok := saved.Get("net.vpc")
	assert.True(t, ok, "in-flight result must reach the backend")
}

func TestApply_ResumesAfterInterruption(t *testing.T) {
	t.Parallel()
	p := fake.New()
	p.FailOn(provider.OpCreate, "net.subnet[1]", errors.New("boom"))
	backend := state.NewMemoryBackend()
	e := New(p, backend)
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.Error(t, err)

	p.ClearFailures()
	resumed, err := backend.Load(context.Background())
	require.NoError(t, err)
	g := defaultStack().build(t)
	plan, err := BuildPlan(g, resumed)
	require.NoError(t, err)
	assert.Equal(t, Summary{Create: 1, NoOp: 2}, plan.Summary())

	_, err = e.Apply(context.Background(), g, resumed, plan)
	require.NoError(t, err)
	assert.Len(t, p.CallsFor("net.vpc"), 1)
}

func TestApply_TaintedCreateIsReplaced(t *testing.T) {
	t.Parallel()
	p := &partialProvider{Provider: fake.New()}
	e := New(p, state.NewMemoryBackend())
	st := state.New()

	_, err := applyStack(t, e, defaultStack(), st)
	require.Error(t, err)
	vpc, ok := st.Get("net.vpc")
	require.True(t, ok)
	assert.True(t, vpc.Tainted)

	p.healthy = true
	plan, err := BuildPlan(defaultStack().build(t), st)
	require.NoError(t, err)
	c, _ := plan.Change("net.vpc")
	assert.Equal(t, ActionReplace, c.Action)
}

// partialProvider creates the VPC but reports a failure, like a resource
// that never stabilised.
type partialProvider struct {
	*fake.Provider
	healthy bool
}

func (p *partialProvider) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	res, err := p.Provider.Create(ctx, req)
	if err != nil || p.healthy || req.Type != provider.TypeVPC {
		return res, err
	}
	return res, errors.New("resource did not stabilise")
}

func TestApply_RejectsDestroyPlan(t *testing.T) {
	t.Parallel()
	e := New(fake.New(), state.NewMemoryBackend())
	_, err := e.Apply(context.Background(), defaultStack().build(t), state.New(), &Plan{Destroy: true})
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestApply_DeletesUndeclaredResources(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)

	s := defaultStack()
	s.subnets = s.subnets[:1]
	_, err = applyStack(t, e, s, st)

	require.NoError(t, err)
	_, ok := st.Get("net.subnet[1]")
	assert.False(t, ok)
	assert.Equal(t, []provider.Operation{provider.OpCreate, provider.OpDelete}, p.CallsFor("net.subnet[1]"))
}

func TestDestroy_ReverseDependencyOrder(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)

	plan, err := PlanDestroy(nil, st)
	require.NoError(t, err)
	assert.Equal(t, Summary{Delete: 3}, plan.Summary())

	report, err := e.Destroy(context.Background(), st, plan)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Count(StatusApplied))
	calls := p.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "net.vpc", last.Addr)
	assert.Equal(t, provider.OpDelete, last.Op)
	assert.Empty(t, st.Resources)
	assert.Empty(t, st.Outputs)
}

func TestDestroy_ToleratesMissingResources(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)
	sub, _ := st.Get("net.subnet[0]")
	p.Remove(sub.ID)

	plan, err := PlanDestroy(nil, st)
	require.NoError(t, err)
	_, err = e.Destroy(context.Background(), st, plan)

	require.NoError(t, err)
	assert.Empty(t, st.Resources)
}

func TestDestroy_PreventDestroyFailsBeforeAnyProviderCall(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	s := defaultStack()
	s.vpcLifecycle = graph.Lifecycle{PreventDestroy: true}
	_, err := applyStack(t, e, s, st)
	require.NoError(t, err)
	calls := len(p.Calls())

	_, err = PlanDestroy(s.build(t), st)

	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
	assert.ErrorContains(t, err, "net.vpc")
	assert.Len(t, p.Calls(), calls)

	// Replacing a protected resource is a destroy as well.
	s.vpcCIDR = "10.9.0.0/16"
	_, err = BuildPlan(s.build(t), st)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestRefresh_DropsVanishedResources(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)
	sub, _ := st.Get("net.subnet[1]")
	p.Remove(sub.ID)

	removed, err := e.Refresh(context.Background(), st)

	require.NoError(t, err)
	assert.Equal(t, []string{"net.subnet[1]"}, removed)
	plan, err := BuildPlan(defaultStack().build(t), st)
	require.NoError(t, err)
	c, _ := plan.Change("net.subnet[1]")
	assert.Equal(t, ActionCreate, c.Action)
}

func TestRefresh_DriftedAttributePlansUpdate(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	s := defaultStack()
	s.vpcTags = map[string]any{"env": "dev"}
	_, err := applyStack(t, e, s, st)
	require.NoError(t, err)
	vpc, _ := st.Get("net.vpc")
	p.Drift(vpc.ID, graph.Attrs{"Tags": map[string]any{"env": "edited"}})

	removed, err := e.Refresh(context.Background(), st)
	require.NoError(t, err)
	assert.Empty(t, removed)

	g := s.build(t)
	plan, err := BuildPlan(g, st)
	require.NoError(t, err)
	c, _ := plan.Change("net.vpc")
	assert.Equal(t, ActionUpdate, c.Action)
	assert.Equal(t, []string{"Tags"}, c.Attrs)
	for _, addr := range []string{"net.subnet[0]", "net.subnet[1]"} {
		sc, _ := plan.Change(addr)
		assert.Equal(t, ActionNoOp, sc.Action, addr)
	}

	_, err = e.Apply(context.Background(), g, st, plan)
	require.NoError(t, err)
	assert.Equal(t, []provider.Operation{provider.OpCreate, provider.OpRead, provider.OpUpdate}, p.CallsFor("net.vpc"))
	after, _ := st.Get("net.vpc")
	assert.Empty(t, after.Drift)

	_, err = e.Refresh(context.Background(), st)
	require.NoError(t, err)
	next, err := BuildPlan(g, st)
	require.NoError(t, err)
	assert.True(t, next.Empty())
}

func TestRefresh_DriftedForceNewAttributePlansReplace(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)
	sub, _ := st.Get("net.subnet[0]")
	p.Drift(sub.ID, graph.Attrs{"CidrBlock": "10.0.9.0/24"})

	_, err = e.Refresh(context.Background(), st)
	require.NoError(t, err)

	plan, err := BuildPlan(defaultStack().build(t), st)
	require.NoError(t, err)
	c, _ := plan.Change("net.subnet[0]")
	assert.Equal(t, ActionReplace, c.Action)
	assert.Equal(t, "drifted: CidrBlock forces replacement", c.Reason)
	other, _ := plan.Change("net.subnet[1]")
	assert.Equal(t, ActionNoOp, other.Action)
}

func TestRefresh_UndriftedResourcesStayUnchanged(t *testing.T) {
	t.Parallel()
	p := fake.New()
	e := New(p, state.NewMemoryBackend())
	st := state.New()
	_, err := applyStack(t, e, defaultStack(), st)
	require.NoError(t, err)

	_, err = e.Refresh(context.Background(), st)
	require.NoError(t, err)

	plan, err := BuildPlan(defaultStack().build(t), st)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}
