package network

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provider/fake"
	"github.com/imamik/stackforge/internal/state"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

func testInputs() Inputs {
	return Inputs{Project: "dev-tv-devops", CIDRBlock: "10.0.0.0/16", AZs: []string{"us-east-1a", "us-east-1b"}}
}

func build(t *testing.T, in Inputs) (*graph.Graph, Outputs) {
	t.Helper()
	b := graph.NewBuilder()
	out, err := Build(b, in)
	require.NoError(t, err)
	g, err := b.Build()
	require.NoError(t, err)
	return g, out
}

func TestBuild_SubnetPerAZ(t *testing.T) {
	t.Parallel()
	g, out := build(t, testInputs())

	require.Len(t, out.SubnetIDs, 2)
	want := []struct{ az, cidr, name string }{
		{"us-east-1a", "10.0.1.0/24", "dev-tv-devops-subnet-us-east-1a"},
		{"us-east-1b", "10.0.2.0/24", "dev-tv-devops-subnet-us-east-1b"},
	}
	for i, w := range want {
		n := g.Node(graph.IndexedAddr(Module, "subnet", i))
		require.NotNil(t, n)
		assert.Equal(t, w.az, n.Attrs.String("AvailabilityZone"))
		assert.Equal(t, w.cidr, n.Attrs.String("CidrBlock"))
		assert.Equal(t, true, n.Attrs["MapPublicIpOnLaunch"])
		assert.Equal(t, []any{map[string]any{"Key": "Name", "Value": w.name}}, n.Attrs["Tags"])
		assert.ElementsMatch(t, []string{"VpcId", "CidrBlock", "AvailabilityZone"}, n.ForceNew)
		assert.Equal(t, graph.IndexedAddr(Module, "subnet", i), out.SubnetIDs[i].Node)
	}
}

func TestBuild_VPCAndSecurityGroup(t *testing.T) {
	t.Parallel()
	g, out := build(t, testInputs())

	vpc := g.Node(graph.Addr(Module, "vpc"))
	require.NotNil(t, vpc)
	assert.Equal(t, provider.TypeVPC, vpc.Type)
	assert.Equal(t, true, vpc.Attrs["EnableDnsSupport"])
	assert.Equal(t, true, vpc.Attrs["EnableDnsHostnames"])
	assert.Equal(t, graph.Ref{Node: vpc.Addr, Attr: "VpcId"}, out.VPCID)

	sg := g.Node(graph.Addr(Module, "security_group"))
	require.NotNil(t, sg)
	assert.Equal(t, "dev-tv-devops-sg", sg.Attrs.String("GroupName"))
	ingress := sg.Attrs["SecurityGroupIngress"].([]any)
	require.Len(t, ingress, 2)
	assert.Equal(t, 80, ingress[0].(map[string]any)["FromPort"])
	assert.Equal(t, 443, ingress[1].(map[string]any)["FromPort"])
	egress := sg.Attrs["SecurityGroupEgress"].([]any)
	require.Len(t, egress, 1)
	assert.Equal(t, "-1", egress[0].(map[string]any)["IpProtocol"])
	assert.Equal(t, "GroupId", out.SecurityGroupID.Attr)
}

func TestBuild_DefaultRouteWaitsForAttachment(t *testing.T) {
	t.Parallel()
	g, _ := build(t, testInputs())

	route := g.Node(graph.Addr(Module, "default_route"))
	require.NotNil(t, route)
	assert.Contains(t, route.Dependencies(), graph.Addr(Module, "gateway_attachment"))
	assert.Equal(t, "0.0.0.0/0", route.Attrs.String("DestinationCidrBlock"))

	for i := range 2 {
		assoc := g.Node(graph.IndexedAddr(Module, "subnet_route_table_association", i))
		require.NotNil(t, assoc)
		assert.Contains(t, assoc.Dependencies(), graph.IndexedAddr(Module, "subnet", i))
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()
	g1, _ := build(t, testInputs())
	g2, _ := build(t, testInputs())
	assert.Equal(t, g1.String(), g2.String())
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   Inputs
	}{
		{"no availability zones", Inputs{Project: "p", CIDRBlock: "10.0.0.0/16"}},
		{"cidr too small", Inputs{Project: "p", CIDRBlock: "10.0.0.0/28", AZs: []string{"a"}}},
		{"invalid cidr", Inputs{Project: "p", CIDRBlock: "nope", AZs: []string{"a"}}},
		{"missing project", Inputs{CIDRBlock: "10.0.0.0/16", AZs: []string{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(graph.NewBuilder(), tt.in)
			var cfgErr *errdefs.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestBuild_AppliesAgainstFakeProvider(t *testing.T) {
	t.Parallel()
	g, _ := build(t, testInputs())
	p := fake.New()
	e := engine.New(p, state.NewMemoryBackend())
	st := state.New()

	plan, err := engine.BuildPlan(g, st)
	require.NoError(t, err)
	_, err = e.Apply(context.Background(), g, st, plan)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Live(provider.TypeVPC))
	assert.Equal(t, 2, p.Live(provider.TypeSubnet))
	assert.Equal(t, 2, p.Live(provider.TypeSubnetRouteAssoc))
	assert.Equal(t, 1, p.Live(provider.TypeSecurityGroup))

	vpc, _ := st.Get("network.vpc")
	subnet, _ := st.Get("network.subnet[1]")
	assert.Equal(t, vpc.Outputs["VpcId"], subnet.Inputs["VpcId"])
}
