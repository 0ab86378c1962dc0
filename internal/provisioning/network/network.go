package network

import (
	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provisioning"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/naming"
)

// Module is the graph module name of every network node.
const Module = "network"

// Inputs configures the network module.
type Inputs struct {
	Project   string
	CIDRBlock string
	AZs       []string
}

// Outputs exposes the refs downstream modules wire into their inputs.
type Outputs struct {
	VPCID           graph.Ref
	SubnetIDs       []graph.Ref
	SecurityGroupID graph.Ref
}

// Build declares the network nodes.
func Build(b *graph.Builder, in Inputs) (Outputs, error) {
	if in.Project == "" {
		return Outputs{}, errdefs.Configf("project", "project name is required")
	}
	allocations, err := config.AllocateSubnets(in.CIDRBlock, in.AZs)
	if err != nil {
		return Outputs{}, err
	}

	m := b.Module(Module)
	vpc, err := m.Add("vpc", provider.TypeVPC, graph.Attrs{
		"CidrBlock":          in.CIDRBlock,
		"EnableDnsSupport":   true,
		"EnableDnsHostnames": true,
		"Tags":               provisioning.NameTag(naming.VPC(in.Project)),
	}, graph.WithForceNew("CidrBlock"))
	if err != nil {
		return Outputs{}, err
	}

	routeTable, err := buildRouting(m, in.Project, vpc)
	if err != nil {
		return Outputs{}, err
	}

	subnets, err := m.AddIndexed("subnet", provider.TypeSubnet, len(allocations), func(i int) graph.Attrs {
		a := allocations[i]
		return graph.Attrs{
			"VpcId":               vpc.Ref("VpcId"),
			"CidrBlock":           a.CIDR,
			"AvailabilityZone":    a.AZ,
			"MapPublicIpOnLaunch": true,
			"Tags":                provisioning.NameTag(naming.Subnet(in.Project, a.AZ)),
		}
	}, graph.WithForceNew("VpcId", "CidrBlock", "AvailabilityZone"))
	if err != nil {
		return Outputs{}, err
	}

	subnetIDs := make([]graph.Ref, len(subnets))
	for i, s := range subnets {
		subnetIDs[i] = s.Ref("SubnetId")
	}
	if _, err := m.AddIndexed("subnet_route_table_association", provider.TypeSubnetRouteAssoc, len(subnets), func(i int) graph.Attrs {
		return graph.Attrs{
			"SubnetId":     subnetIDs[i],
			"RouteTableId": routeTable.Ref("RouteTableId"),
		}
	}, graph.WithForceNew("SubnetId", "RouteTableId")); err != nil {
		return Outputs{}, err
	}

	sg, err := m.Add("security_group", provider.TypeSecurityGroup, graph.Attrs{
		"GroupName":            naming.SecurityGroup(in.Project),
		"GroupDescription":     "Allow HTTP and HTTPS from anywhere",
		"VpcId":                vpc.Ref("VpcId"),
		"SecurityGroupIngress": ingressRules(),
		"SecurityGroupEgress":  egressRules(),
		"Tags":                 provisioning.NameTag(naming.SecurityGroup(in.Project)),
	}, graph.WithForceNew("GroupName", "GroupDescription", "VpcId"))
	if err != nil {
		return Outputs{}, err
	}

	return Outputs{
		VPCID:           vpc.Ref("VpcId"),
		SubnetIDs:       subnetIDs,
		SecurityGroupID: sg.Ref("GroupId"),
	}, nil
}

// buildRouting gives the public subnets a default route to an internet
// gateway so the load balancer and tasks with public IPs are reachable.
func buildRouting(m *graph.ModuleBuilder, project string, vpc *graph.Node) (*graph.Node, error) {
	igw, err := m.Add("internet_gateway", provider.TypeInternetGateway, graph.Attrs{
		"Tags": provisioning.NameTag(project + "-igw"),
	})
	if err != nil {
		return nil, err
	}
	attachment, err := m.Add("gateway_attachment", provider.TypeGatewayAttachment, graph.Attrs{
		"VpcId":             vpc.Ref("VpcId"),
		"InternetGatewayId": igw.Ref("InternetGatewayId"),
	}, graph.WithForceNew("VpcId", "InternetGatewayId"))
	if err != nil {
		return nil, err
	}
	routeTable, err := m.Add("route_table", provider.TypeRouteTable, graph.Attrs{
		"VpcId": vpc.Ref("VpcId"),
		"Tags":  provisioning.NameTag(project + "-rt"),
	}, graph.WithForceNew("VpcId"))
	if err != nil {
		return nil, err
	}
	// The route is rejected until the gateway is attached to the VPC.
	if _, err := m.Add("default_route", provider.TypeRoute, graph.Attrs{
		"RouteTableId":         routeTable.Ref("RouteTableId"),
		"DestinationCidrBlock": "0.0.0.0/0",
		"GatewayId":            igw.Ref("InternetGatewayId"),
	}, graph.WithForceNew("RouteTableId", "DestinationCidrBlock"), graph.WithDependsOn(attachment.Addr)); err != nil {
		return nil, err
	}
	return routeTable, nil
}

func ingressRules() []any {
	rules := make([]any, 0, 2)
	for _, port := range []int{80, 443} {
		rules = append(rules, map[string]any{
			"IpProtocol": "tcp",
			"FromPort":   port,
			"ToPort":     port,
			"CidrIp":     "0.0.0.0/0",
		})
	}
	return rules
}

func egressRules() []any {
	return []any{map[string]any{
		"IpProtocol": "-1",
		"CidrIp":     "0.0.0.0/0",
	}}
}
