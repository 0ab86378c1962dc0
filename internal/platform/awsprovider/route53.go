package awsprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"

	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provisioning/certificate"
)

// Route53API is the subset of the Route53 client used here.
type Route53API interface {
	ListHostedZonesByName(ctx context.Context, in *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Route53 is a certificate.DNSZone backed by Route 53 public hosted zones.
type Route53 struct {
	api Route53API
}

// NewRoute53 creates a zone client from a loaded AWS config.
func NewRoute53(cfg aws.Config) *Route53 {
	return &Route53{api: route53.NewFromConfig(cfg)}
}

// NewRoute53FromAPI creates a zone client over an existing client.
func NewRoute53FromAPI(api Route53API) *Route53 {
	return &Route53{api: api}
}

// LookupZone implements certificate.DNSZone. It walks up from domain to the
// closest public hosted zone, so dev.example.com resolves to example.com.
func (r *Route53) LookupZone(ctx context.Context, domain string) (string, error) {
	for name := certificate.FQDN(domain); strings.Contains(name, "."); name = name[strings.Index(name, ".")+1:] {
		out, err := r.api.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
			DNSName:  aws.String(name + "."),
			MaxItems: aws.Int32(1),
		})
		if err != nil {
			return "", classify(domain, provider.OpRead, err)
		}
		for _, hz := range out.HostedZones {
			if certificate.FQDN(aws.ToString(hz.Name)) != name {
				continue
			}
			if hz.Config != nil && hz.Config.PrivateZone {
				continue
			}
			return strings.TrimPrefix(aws.ToString(hz.Id), "/hostedzone/"), nil
		}
	}
	return "", fmt.Errorf("%s: %w", domain, certificate.ErrZoneNotFound)
}

// UpsertRecord implements certificate.DNSZone.
func (r *Route53) UpsertRecord(ctx context.Context, zoneID string, rec certificate.Record) error {
	return r.change(ctx, zoneID, r53types.ChangeActionUpsert, rec, provider.OpUpdate)
}

// DeleteRecord implements certificate.DNSZone. The record must match the
// stored one exactly.
func (r *Route53) DeleteRecord(ctx context.Context, zoneID string, rec certificate.Record) error {
	err := r.change(ctx, zoneID, r53types.ChangeActionDelete, rec, provider.OpDelete)
	if isRecordNotFound(err) {
		return fmt.Errorf("record %s %s: %w", rec.Type, rec.Name, provider.ErrNotFound)
	}
	return err
}

func (r *Route53) change(ctx context.Context, zoneID string, action r53types.ChangeAction, rec certificate.Record, op provider.Operation) error {
	_, err := r.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Comment: aws.String("managed by stackforge"),
			Changes: []r53types.Change{{Action: action, ResourceRecordSet: recordSet(rec)}},
		},
	})
	if err != nil {
		if isRecordNotFound(err) {
			return err
		}
		return classify(rec.Name, op, err)
	}
	return nil
}

func recordSet(rec certificate.Record) *r53types.ResourceRecordSet {
	set := &r53types.ResourceRecordSet{
		Name: aws.String(rec.Name),
		Type: r53types.RRType(rec.Type),
	}
	if rec.Alias != nil {
		set.AliasTarget = &r53types.AliasTarget{
			DNSName:              aws.String(rec.Alias.DNSName),
			HostedZoneId:         aws.String(rec.Alias.HostedZoneID),
			EvaluateTargetHealth: rec.Alias.EvaluateTargetHealth,
		}
		return set
	}
	ttl := rec.TTL
	if ttl == 0 {
		ttl = certificate.ValidationTTL
	}
	set.TTL = aws.Int64(ttl)
	set.ResourceRecords = []r53types.ResourceRecord{{Value: aws.String(rec.Value)}}
	return set
}

// isRecordNotFound matches the InvalidChangeBatch Route 53 returns for a
// DELETE of a record that does not exist.
func isRecordNotFound(err error) bool {
	var batchErr *r53types.InvalidChangeBatch
	if errors.As(err, &batchErr) {
		for _, m := range batchErr.Messages {
			if strings.Contains(m, "not found") {
				return true
			}
		}
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "InvalidChangeBatch" {
		return false
	}
	return strings.Contains(apiErr.ErrorMessage(), "not found")
}
