package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provider/fake"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

// testStack describes a small network graph: one VPC and one subnet per CIDR.
type testStack struct {
	vpcCIDR         string
	vpcTags         map[string]any
	vpcLifecycle    graph.Lifecycle
	subnets         []string
	subnetLifecycle graph.Lifecycle
}

func defaultStack() testStack {
	return testStack{vpcCIDR: "10.0.0.0/16", subnets: []string{"10.0.1.0/24", "10.0.2.0/24"}}
}

func (s testStack) build(t *testing.T) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	net := b.Module("net")

	attrs := graph.Attrs{"CidrBlock": s.vpcCIDR}
	if s.vpcTags != nil {
		attrs["Tags"] = s.vpcTags
	}
	vpc, err := net.Add("vpc", provider.TypeVPC, attrs,
		graph.WithForceNew("CidrBlock"), graph.WithLifecycle(s.vpcLifecycle))
	require.NoError(t, err)

	_, err = net.AddIndexed("subnet", provider.TypeSubnet, len(s.subnets), func(i int) graph.Attrs {
		return graph.Attrs{"VpcId": vpc.Ref("VpcId"), "CidrBlock": s.subnets[i]}
	}, graph.WithForceNew("VpcId", "CidrBlock"), graph.WithLifecycle(s.subnetLifecycle))
	require.NoError(t, err)

	b.Output("vpc_id", vpc.Ref("VpcId"))
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

// applyStack plans and applies s against st.
func applyStack(t *testing.T, e *Engine, s testStack, st *state.State) (*Report, error) {
	t.Helper()
	g := s.build(t)
	plan, err := BuildPlan(g, st)
	require.NoError(t, err)
	return e.Apply(context.Background(), g, st, plan)
}

// flakyProvider fails the first n creates of each address with a
// retryable provider error.
type flakyProvider struct {
	*fake.Provider
	n int

	mu       sync.Mutex
	attempts map[string]int
}

func (f *flakyProvider) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[req.Addr.String()]++
	attempt := f.attempts[req.Addr.String()]
	f.mu.Unlock()

	if attempt <= f.n {
		return provider.Result{}, fmt.Errorf("throttled: %w", errThrottled(req.Addr.String()))
	}
	return f.Provider.Create(ctx, req)
}

func errThrottled(addr string) error {
	return &errdefs.ProviderAPIError{Node: addr, Operation: "create", Code: "Throttling", Retryable: true}
}

// barrierProvider holds subnet creates until gate reaches zero. A nil
// gate passes every call through.
type barrierProvider struct {
	*fake.Provider
	gate *sync.WaitGroup
}

func (b *barrierProvider) Create(ctx context.Context, req provider.Request) (provider.Result, error) {
	if b.gate != nil && req.Type == provider.TypeSubnet {
		b.gate.Done()
		b.gate.Wait()
	}
	return b.Provider.Create(ctx, req)
}
