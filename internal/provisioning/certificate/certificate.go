package certificate

import (
	"github.com/imamik/stackforge/internal/graph"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/naming"
)

// Module is the graph module name of the certificate nodes.
const Module = "certificate"

// TLSPolicy is the security policy of the HTTPS listener.
const TLSPolicy = "ELBSecurityPolicy-TLS13-1-2-2021-06"

// Inputs configures the certificate module.
type Inputs struct {
	Project string
	// Domain is the fully qualified host name, e.g. dev.example.com.
	Domain string
	// ZoneID is the hosted zone serving Domain, resolved before the graph
	// is built.
	ZoneID string

	LoadBalancerARN     graph.Ref
	LoadBalancerDNSName graph.Ref
	LoadBalancerZoneID  graph.Ref
	TargetGroupARN      graph.Ref
}

// Outputs exposes the issued certificate and the HTTPS entry point.
type Outputs struct {
	CertificateARN graph.Ref
	ListenerARN    graph.Ref
	// Listener is the HTTPS listener node; the service waits for it because
	// it is what attaches the target group to the load balancer.
	Listener graph.Address
	FQDN     graph.Ref
}

// Build declares the certificate workflow nodes, the HTTPS listener and the
// alias record. The listener and the alias record depend on the validation
// node, so they are only created once the certificate is issued.
func Build(b *graph.Builder, in Inputs) (Outputs, error) {
	if in.Domain == "" {
		return Outputs{}, errdefs.Configf("domain", "a domain is required for the certificate")
	}
	if in.ZoneID == "" {
		return Outputs{}, errdefs.Configf("dns.zoneId", "no hosted zone for %s", in.Domain)
	}
	m := b.Module(Module)
	for _, req := range []struct {
		input string
		ref   graph.Ref
	}{
		{"load_balancer_arn", in.LoadBalancerARN},
		{"load_balancer_dns_name", in.LoadBalancerDNSName},
		{"load_balancer_zone_id", in.LoadBalancerZoneID},
		{"target_group_arn", in.TargetGroupARN},
	} {
		if err := m.RequireRef("https_listener", req.input, req.ref); err != nil {
			return Outputs{}, err
		}
	}

	cert, err := m.Add("certificate", TypeCertificate, graph.Attrs{
		"domain_name":       in.Domain,
		"validation_method": "DNS",
		"tags":              map[string]any{"Name": naming.Certificate(in.Project)},
	}, graph.WithForceNew("domain_name", "validation_method"),
		graph.WithLifecycle(graph.Lifecycle{CreateBeforeDestroy: true}))
	if err != nil {
		return Outputs{}, err
	}

	record, err := m.Add("validation_record", TypeValidationRecord, graph.Attrs{
		"zone_id":         in.ZoneID,
		"name":            cert.Ref("validation_record_name"),
		"type":            cert.Ref("validation_record_type"),
		"value":           cert.Ref("validation_record_value"),
		"ttl":             ValidationTTL,
		"certificate_arn": cert.Ref("arn"),
	}, graph.WithForceNew("zone_id", "name", "type"))
	if err != nil {
		return Outputs{}, err
	}

	validation, err := m.Add("validation", TypeValidation, graph.Attrs{
		"certificate_arn":         cert.Ref("arn"),
		"validation_record_fqdns": graph.List(record.Ref("fqdn")),
	}, graph.WithForceNew("certificate_arn"))
	if err != nil {
		return Outputs{}, err
	}

	listener, err := m.Add("https_listener", provider.TypeListener, graph.Attrs{
		"LoadBalancerArn": in.LoadBalancerARN,
		"Port":            443,
		"Protocol":        "HTTPS",
		"SslPolicy":       TLSPolicy,
		"Certificates": []any{map[string]any{
			"CertificateArn": validation.Ref("certificate_arn"),
		}},
		"DefaultActions": []any{map[string]any{
			"Type":           "forward",
			"TargetGroupArn": in.TargetGroupARN,
		}},
	}, graph.WithForceNew("LoadBalancerArn"), graph.WithDependsOn(validation.Addr))
	if err != nil {
		return Outputs{}, err
	}

	alias, err := m.Add("alias_record", TypeAliasRecord, graph.Attrs{
		"zone_id":                in.ZoneID,
		"name":                   in.Domain,
		"type":                   "A",
		"alias_dns_name":         in.LoadBalancerDNSName,
		"alias_zone_id":          in.LoadBalancerZoneID,
		"evaluate_target_health": true,
	}, graph.WithForceNew("zone_id", "name", "type"), graph.WithDependsOn(validation.Addr))
	if err != nil {
		return Outputs{}, err
	}

	return Outputs{
		CertificateARN: validation.Ref("certificate_arn"),
		ListenerARN:    listener.Ref("ListenerArn"),
		Listener:       listener.Addr,
		FQDN:           alias.Ref("fqdn"),
	}, nil
}
