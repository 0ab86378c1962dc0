package certificate

import (
	"context"
	"errors"
	"strings"
	"time"
)

// State is a step of the issuance workflow.
type State string

const (
	StateRequested              State = "Requested"
	StateAwaitingDNSPropagation State = "AwaitingDNSPropagation"
	StateValidated              State = "Validated"
	StateIssued                 State = "Issued"
)

// Certificate status values reported by the authority.
const (
	StatusPendingValidation = "PENDING_VALIDATION"
	StatusIssued            = "ISSUED"
	StatusFailed            = "FAILED"
)

// ValidationTTL is the TTL of validation records, in seconds.
const ValidationTTL = 60

// ErrNotValidated is returned by CertificateAuthority.WaitValidated when the
// wait ends before the authority validated the certificate.
var ErrNotValidated = errors.New("certificate not validated")

// ErrZoneNotFound is returned by DNSZone.LookupZone when no hosted zone
// serves the domain.
var ErrZoneNotFound = errors.New("hosted zone not found")

// ValidationRecord is the DNS record proving control of one domain.
type ValidationRecord struct {
	DomainName string
	Name       string
	Type       string
	Value      string
}

// Record converts the validation record into a zone record.
func (v ValidationRecord) Record() Record {
	return Record{Name: v.Name, Type: v.Type, Value: v.Value, TTL: ValidationTTL}
}

// Certificate is the authority's view of a certificate.
type Certificate struct {
	ARN        string
	DomainName string
	Status     string
	// Validation holds one record per requested domain, in request order.
	// It stays empty until the authority has generated the records.
	Validation []ValidationRecord
}

// Record is a DNS record. Alias records carry a target instead of a value.
type Record struct {
	Name  string
	Type  string
	Value string
	TTL   int64
	Alias *AliasTarget
}

// AliasTarget points an alias record at a load balancer.
type AliasTarget struct {
	DNSName              string
	HostedZoneID         string
	EvaluateTargetHealth bool
}

// CertificateAuthority issues DNS-validated certificates.
type CertificateAuthority interface {
	RequestCertificate(ctx context.Context, domain string, tags map[string]string) (string, error)
	// DescribeCertificate returns an error wrapping provider.ErrNotFound for
	// unknown ARNs.
	DescribeCertificate(ctx context.Context, arn string) (*Certificate, error)
	// WaitValidated polls every interval until the certificate is validated
	// or ctx is done, in which case the error wraps ErrNotValidated.
	WaitValidated(ctx context.Context, arn string, interval time.Duration) error
	DeleteCertificate(ctx context.Context, arn string) error
}

// DNSZone writes records into a hosted zone.
type DNSZone interface {
	LookupZone(ctx context.Context, domain string) (string, error)
	// UpsertRecord creates the record or overwrites an existing one with the
	// same name and type.
	UpsertRecord(ctx context.Context, zoneID string, rec Record) error
	// DeleteRecord returns an error wrapping provider.ErrNotFound when the
	// record does not exist.
	DeleteRecord(ctx context.Context, zoneID string, rec Record) error
}

// FQDN normalizes a DNS name to lower case without the trailing dot.
func FQDN(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
