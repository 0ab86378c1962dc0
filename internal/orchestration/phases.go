package orchestration

import (
	"context"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provisioning"
	"github.com/imamik/stackforge/internal/provisioning/certificate"
	"github.com/imamik/stackforge/internal/provisioning/compute"
	"github.com/imamik/stackforge/internal/provisioning/loadbalancer"
	"github.com/imamik/stackforge/internal/provisioning/network"
	"github.com/imamik/stackforge/internal/provisioning/observability"
	"github.com/imamik/stackforge/internal/provisioning/registry"
)

// Published stack outputs.
const (
	OutputLoadBalancerDNSName = "load_balancer_dns_name"
	OutputClusterName         = "cluster_name"
	OutputCertificateARN      = "certificate_arn"
)

// BuildGraph declares the whole stack for env. zoneID is the DNS zone that
// serves env.Subdomain().
func BuildGraph(env config.Environment, zoneID string) (*graph.Graph, error) {
	return buildGraph(context.Background(), env, zoneID, nil)
}

func buildGraph(ctx context.Context, env config.Environment, zoneID string, observer engine.Observer) (*graph.Graph, error) {
	pctx := provisioning.NewContext(ctx, env, zoneID, observer)
	w := &wiring{}
	if err := provisioning.RunPhases(pctx, w.phases()); err != nil {
		return nil, err
	}
	return pctx.Builder.Build()
}

// wiring carries module outputs from one phase to the next.
type wiring struct {
	network  network.Outputs
	registry registry.Outputs
	logGroup graph.Ref
	roles    compute.Roles
	lb       loadbalancer.Outputs
	cert     certificate.Outputs
	compute  compute.Outputs
}

type phase struct {
	name      string
	provision func(*provisioning.Context) error
}

func (p phase) Name() string                              { return p.name }
func (p phase) Provision(ctx *provisioning.Context) error { return p.provision(ctx) }

func (w *wiring) phases() []provisioning.Phase {
	return []provisioning.Phase{
		provisioning.NewValidationPhase(),
		phase{network.Module, w.buildNetwork},
		phase{registry.Module, w.buildRegistry},
		phase{"identity", w.buildIdentity},
		phase{loadbalancer.Module, w.buildLoadBalancer},
		phase{certificate.Module, w.buildCertificate},
		phase{compute.Module, w.buildCompute},
		phase{observability.Module, w.buildObservability},
		phase{"outputs", w.publish},
	}
}

func (w *wiring) buildNetwork(ctx *provisioning.Context) error {
	out, err := network.Build(ctx.Builder, network.Inputs{
		Project:   ctx.Env.QualifiedProject(),
		CIDRBlock: ctx.Env.Network.CIDR,
		AZs:       ctx.Env.AvailabilityZones(),
	})
	w.network = out
	return err
}

func (w *wiring) buildRegistry(ctx *provisioning.Context) error {
	out, err := registry.Build(ctx.Builder, registry.Inputs{
		Project: ctx.Env.QualifiedProject(),
		Protect: ctx.Env.Tier == config.TierProd,
	})
	w.registry = out
	return err
}

// buildIdentity declares what the task definition references besides the
// image: the log group and the IAM roles.
func (w *wiring) buildIdentity(ctx *provisioning.Context) error {
	project := ctx.Env.QualifiedProject()
	logGroup, err := observability.BuildLogGroup(ctx.Builder, project, ctx.Env.Logging.RetentionDays)
	if err != nil {
		return err
	}
	w.logGroup = logGroup
	w.roles, err = compute.BuildRoles(ctx.Builder, project)
	return err
}

func (w *wiring) buildLoadBalancer(ctx *provisioning.Context) error {
	out, err := loadbalancer.Build(ctx.Builder, loadbalancer.Inputs{
		Project:          ctx.Env.QualifiedProject(),
		VPCID:            w.network.VPCID,
		SubnetIDs:        w.network.SubnetIDs,
		SecurityGroupIDs: []graph.Ref{w.network.SecurityGroupID},
		TargetPort:       ctx.Env.Container.Port,
	})
	w.lb = out
	return err
}

func (w *wiring) buildCertificate(ctx *provisioning.Context) error {
	out, err := certificate.Build(ctx.Builder, certificate.Inputs{
		Project:             ctx.Env.QualifiedProject(),
		Domain:              ctx.Env.Subdomain(),
		ZoneID:              ctx.ZoneID,
		LoadBalancerARN:     w.lb.LoadBalancerARN,
		LoadBalancerDNSName: w.lb.DNSName,
		LoadBalancerZoneID:  w.lb.CanonicalZoneID,
		TargetGroupARN:      w.lb.TargetGroupARN,
	})
	w.cert = out
	return err
}

func (w *wiring) buildCompute(ctx *provisioning.Context) error {
	out, err := compute.Build(ctx.Builder, compute.Inputs{
		Project:          ctx.Env.QualifiedProject(),
		Tier:             ctx.Env.Tier,
		Region:           ctx.Env.Region,
		ExecutionRoleARN: w.roles.ExecutionRoleARN,
		TaskRoleARN:      w.roles.TaskRoleARN,
		Image:            ctx.Env.Container.Image,
		ImageRepository:  w.registry.RepositoryURL,
		ContainerPort:    ctx.Env.Container.Port,
		SubnetIDs:        w.network.SubnetIDs,
		SecurityGroupIDs: []graph.Ref{w.network.SecurityGroupID},
		TargetGroupARN:   w.lb.TargetGroupARN,
		LogGroup:         w.logGroup,
		After:            []graph.Address{w.cert.Listener},
	})
	w.compute = out
	return err
}

func (w *wiring) buildObservability(ctx *provisioning.Context) error {
	_, err := observability.Build(ctx.Builder, observability.Inputs{
		Project:       ctx.Env.QualifiedProject(),
		RetentionDays: ctx.Env.Logging.RetentionDays,
		ClusterName:   w.compute.ClusterName,
		ServiceName:   w.compute.ServiceName,
	})
	return err
}

func (w *wiring) publish(ctx *provisioning.Context) error {
	ctx.Builder.Output(OutputLoadBalancerDNSName, w.lb.DNSName)
	ctx.Builder.Output(OutputClusterName, w.compute.ClusterName)
	ctx.Builder.Output(OutputCertificateARN, w.cert.CertificateARN)
	return nil
}
