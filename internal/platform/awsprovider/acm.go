package awsprovider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"

	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provisioning/certificate"
)

// ACMAPI is the subset of the ACM client used here.
type ACMAPI interface {
	RequestCertificate(ctx context.Context, in *acm.RequestCertificateInput, optFns ...func(*acm.Options)) (*acm.RequestCertificateOutput, error)
	DescribeCertificate(ctx context.Context, in *acm.DescribeCertificateInput, optFns ...func(*acm.Options)) (*acm.DescribeCertificateOutput, error)
	DeleteCertificate(ctx context.Context, in *acm.DeleteCertificateInput, optFns ...func(*acm.Options)) (*acm.DeleteCertificateOutput, error)
}

// ACM is a certificate.CertificateAuthority backed by AWS Certificate Manager.
type ACM struct {
	api ACMAPI
}

// NewACM creates an authority from a loaded AWS config.
func NewACM(cfg aws.Config) *ACM {
	return &ACM{api: acm.NewFromConfig(cfg)}
}

// NewACMFromAPI creates an authority over an existing client.
func NewACMFromAPI(api ACMAPI) *ACM {
	return &ACM{api: api}
}

// RequestCertificate implements certificate.CertificateAuthority.
func (a *ACM) RequestCertificate(ctx context.Context, domain string, tags map[string]string) (string, error) {
	in := &acm.RequestCertificateInput{
		DomainName:       aws.String(domain),
		ValidationMethod: acmtypes.ValidationMethodDns,
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		in.Tags = append(in.Tags, acmtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}

	out, err := a.api.RequestCertificate(ctx, in)
	if err != nil {
		return "", classify(domain, provider.OpCreate, err)
	}
	return aws.ToString(out.CertificateArn), nil
}

// DescribeCertificate implements certificate.CertificateAuthority.
func (a *ACM) DescribeCertificate(ctx context.Context, arn string) (*certificate.Certificate, error) {
	out, err := a.api.DescribeCertificate(ctx, &acm.DescribeCertificateInput{CertificateArn: aws.String(arn)})
	if err != nil {
		return nil, classify(arn, provider.OpRead, err)
	}
	detail := out.Certificate
	if detail == nil {
		return nil, fmt.Errorf("certificate %s: %w", arn, provider.ErrNotFound)
	}

	cert := &certificate.Certificate{
		ARN:        aws.ToString(detail.CertificateArn),
		DomainName: aws.ToString(detail.DomainName),
		Status:     string(detail.Status),
	}
	for _, opt := range detail.DomainValidationOptions {
		if opt.ResourceRecord == nil {
			continue
		}
		cert.Validation = append(cert.Validation, certificate.ValidationRecord{
			DomainName: aws.ToString(opt.DomainName),
			Name:       aws.ToString(opt.ResourceRecord.Name),
			Type:       string(opt.ResourceRecord.Type),
			Value:      aws.ToString(opt.ResourceRecord.Value),
		})
	}
	return cert, nil
}

// WaitValidated implements certificate.CertificateAuthority with the SDK's
// CertificateValidated waiter, bounded by the deadline of ctx.
func (a *ACM) WaitValidated(ctx context.Context, arn string, interval time.Duration) error {
	maxWait := 24 * time.Hour
	if deadline, ok := ctx.Deadline(); ok {
		maxWait = time.Until(deadline)
	}
	if maxWait <= 0 {
		return certificate.ErrNotValidated
	}

	waiter := acm.NewCertificateValidatedWaiter(a.api, func(o *acm.CertificateValidatedWaiterOptions) {
		o.MinDelay = interval
		o.MaxDelay = interval
	})
	err := waiter.Wait(ctx, &acm.DescribeCertificateInput{CertificateArn: aws.String(arn)}, maxWait)
	if err == nil {
		return nil
	}
	// The waiter reports an exhausted wait only through its message.
	if ctx.Err() != nil || strings.Contains(err.Error(), "exceeded max wait time") {
		return fmt.Errorf("%w: %v", certificate.ErrNotValidated, err)
	}
	return classify(arn, provider.OpRead, err)
}

// DeleteCertificate implements certificate.CertificateAuthority.
func (a *ACM) DeleteCertificate(ctx context.Context, arn string) error {
	_, err := a.api.DeleteCertificate(ctx, &acm.DeleteCertificateInput{CertificateArn: aws.String(arn)})
	return classify(arn, provider.OpDelete, err)
}
