// Package loadbalancer declares the public application load balancer.
//
// The module owns the load balancer, the target group the service registers
// its tasks in, and the plain HTTP listener that redirects to HTTPS. The
// HTTPS listener needs the issued certificate and is declared by the
// certificate module instead.
package loadbalancer

import (
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provisioning"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/naming"
)

// Module is the graph module name of the load balancer nodes.
const Module = "loadbalancer"

// DefaultTargetPort is the container port traffic is forwarded to.
const DefaultTargetPort = 3000

// Inputs configures the load balancer module.
type Inputs struct {
	Project          string
	VPCID            graph.Ref
	SubnetIDs        []graph.Ref
	SecurityGroupIDs []graph.Ref
	TargetPort       int
}

// Outputs exposes the refs consumed by compute and certificate.
type Outputs struct {
	LoadBalancerARN graph.Ref
	DNSName         graph.Ref
	CanonicalZoneID graph.Ref
	FullName        graph.Ref
	TargetGroupARN  graph.Ref
	TargetGroupName graph.Ref
}

// Build declares the load balancer, target group and HTTP redirect listener.
func Build(b *graph.Builder, in Inputs) (Outputs, error) {
	m := b.Module(Module)
	if err := m.RequireRef("load_balancer", "vpc", in.VPCID); err != nil {
		return Outputs{}, err
	}
	if len(in.SubnetIDs) < 1 {
		return Outputs{}, errdefs.Configf("loadbalancer.subnets", "at least one subnet is required")
	}
	for _, s := range in.SubnetIDs {
		if err := m.RequireRef("load_balancer", "subnets", s); err != nil {
			return Outputs{}, err
		}
	}
	port := in.TargetPort
	if port == 0 {
		port = DefaultTargetPort
	}

	lb, err := m.Add("load_balancer", provider.TypeLoadBalancer, graph.Attrs{
		"Name":           naming.LoadBalancer(in.Project),
		"Type":           "application",
		"Scheme":         "internet-facing",
		"Subnets":        graph.RefList(in.SubnetIDs),
		"SecurityGroups": graph.RefList(in.SecurityGroupIDs),
		"Tags":           provisioning.NameTag(naming.LoadBalancer(in.Project)),
	}, graph.WithForceNew("Name", "Scheme", "Type"))
	if err != nil {
		return Outputs{}, err
	}

	tg, err := m.Add("target_group", provider.TypeTargetGroup, graph.Attrs{
		"Name":                       naming.TargetGroup(in.Project),
		"Port":                       port,
		"Protocol":                   "HTTP",
		"TargetType":                 "ip",
		"VpcId":                      in.VPCID,
		"HealthCheckPath":            "/",
		"HealthCheckProtocol":        "HTTP",
		"HealthCheckIntervalSeconds": 30,
		"Matcher":                    map[string]any{"HttpCode": "200"},
	}, graph.WithForceNew("Name", "Port", "Protocol", "TargetType", "VpcId"))
	if err != nil {
		return Outputs{}, err
	}

	if _, err := m.Add("http_listener", provider.TypeListener, graph.Attrs{
		"LoadBalancerArn": lb.Ref("LoadBalancerArn"),
		"Port":            80,
		"Protocol":        "HTTP",
		"DefaultActions": []any{map[string]any{
			"Type": "redirect",
			"RedirectConfig": map[string]any{
				"Protocol":   "HTTPS",
				"Port":       "443",
				"StatusCode": "HTTP_301",
			},
		}},
	}, graph.WithForceNew("LoadBalancerArn")); err != nil {
		return Outputs{}, err
	}

	return Outputs{
		LoadBalancerARN: lb.Ref("LoadBalancerArn"),
		DNSName:         lb.Ref("DNSName"),
		CanonicalZoneID: lb.Ref("CanonicalHostedZoneID"),
		FullName:        lb.Ref("LoadBalancerFullName"),
		TargetGroupARN:  tg.Ref("TargetGroupArn"),
		TargetGroupName: tg.Ref("TargetGroupFullName"),
	}, nil
}
