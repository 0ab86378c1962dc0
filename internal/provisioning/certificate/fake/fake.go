// Package fake provides in-memory certificate authority and DNS zone
// implementations for tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provisioning/certificate"
)

type cert struct {
	domain    string
	status    string
	describes int
	token     string
}

// Authority issues certificates once their validation record is present in
// Zone.
type Authority struct {
	// Zone is consulted by WaitValidated. A nil zone never validates.
	Zone *Zone
	// OptionsAfter is the number of DescribeCertificate calls that return no
	// validation options for a fresh certificate.
	OptionsAfter int

	mu       sync.Mutex
	certs    map[string]*cert
	seq      int
	requests int
	waits    int
}

// NewAuthority returns an authority validating against zone.
func NewAuthority(zone *Zone) *Authority {
	return &Authority{Zone: zone, certs: make(map[string]*cert)}
}

// RequestCertificate implements certificate.CertificateAuthority.
func (a *Authority) RequestCertificate(_ context.Context, domain string, _ map[string]string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.requests++
	arn := fmt.Sprintf("arn:aws:acm:us-east-1:123456789012:certificate/%04d", a.seq)
	a.certs[arn] = &cert{domain: domain, status: certificate.StatusPendingValidation, token: fmt.Sprintf("%04x", a.seq*7919)}
	return arn, nil
}

// DescribeCertificate implements certificate.CertificateAuthority.
func (a *Authority) DescribeCertificate(_ context.Context, arn string) (*certificate.Certificate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.certs[arn]
	if !ok {
		return nil, fmt.Errorf("certificate %s: %w", arn, provider.ErrNotFound)
	}
	c.describes++
	out := &certificate.Certificate{ARN: arn, DomainName: c.domain, Status: c.status}
	if c.describes > a.OptionsAfter {
		out.Validation = []certificate.ValidationRecord{validationRecord(c)}
	}
	return out, nil
}

// WaitValidated implements certificate.CertificateAuthority.
func (a *Authority) WaitValidated(ctx context.Context, arn string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		a.mu.Lock()
		a.waits++
		c, ok := a.certs[arn]
		if !ok {
			a.mu.Unlock()
			return fmt.Errorf("certificate %s: %w", arn, provider.ErrNotFound)
		}
		rec := validationRecord(c)
		a.mu.Unlock()

		if a.Zone != nil && a.Zone.Has(rec.Name, rec.Type, rec.Value) {
			a.mu.Lock()
			c.status = certificate.StatusIssued
			a.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", certificate.ErrNotValidated, ctx.Err())
		case <-ticker.C:
		}
	}
}

// DeleteCertificate implements certificate.CertificateAuthority.
func (a *Authority) DeleteCertificate(_ context.Context, arn string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.certs[arn]; !ok {
		return fmt.Errorf("certificate %s: %w", arn, provider.ErrNotFound)
	}
	delete(a.certs, arn)
	return nil
}

// Requests returns the number of certificates requested.
func (a *Authority) Requests() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests
}

// Live returns the ARNs of certificates that have not been deleted.
func (a *Authority) Live() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.certs))
	for arn := range a.certs {
		out = append(out, arn)
	}
	sort.Strings(out)
	return out
}

// Status returns the status of a certificate.
func (a *Authority) Status(arn string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.certs[arn]; ok {
		return c.status
	}
	return ""
}

func validationRecord(c *cert) certificate.ValidationRecord {
	return certificate.ValidationRecord{
		DomainName: c.domain,
		Name:       fmt.Sprintf("_%s.%s.", c.token, c.domain),
		Type:       "CNAME",
		Value:      fmt.Sprintf("_%s.acm-validations.aws.", c.token),
	}
}

// Zone is an in-memory hosted zone store.
type Zone struct {
	mu      sync.Mutex
	zones   map[string]string
	records map[string]certificate.Record
	upserts int
}

// NewZone returns a store serving domain under zoneID.
func NewZone(domain, zoneID string) *Zone {
	return &Zone{
		zones:   map[string]string{certificate.FQDN(domain): zoneID},
		records: make(map[string]certificate.Record),
	}
}

// LookupZone implements certificate.DNSZone. The most specific zone whose
// domain is a suffix of domain wins.
func (z *Zone) LookupZone(_ context.Context, domain string) (string, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	name := certificate.FQDN(domain)
	best, bestLen := "", -1
	for d, id := range z.zones {
		if (name == d || strings.HasSuffix(name, "."+d)) && len(d) > bestLen {
			best, bestLen = id, len(d)
		}
	}
	if best == "" {
		return "", fmt.Errorf("%s: %w", domain, certificate.ErrZoneNotFound)
	}
	return best, nil
}

// UpsertRecord implements certificate.DNSZone.
func (z *Zone) UpsertRecord(_ context.Context, zoneID string, rec certificate.Record) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.knows(zoneID) {
		return fmt.Errorf("zone %s: %w", zoneID, provider.ErrNotFound)
	}
	z.upserts++
	z.records[key(zoneID, rec)] = rec
	return nil
}

// DeleteRecord implements certificate.DNSZone.
func (z *Zone) DeleteRecord(_ context.Context, zoneID string, rec certificate.Record) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	k := key(zoneID, rec)
	if _, ok := z.records[k]; !ok {
		return fmt.Errorf("record %s %s: %w", rec.Type, rec.Name, provider.ErrNotFound)
	}
	delete(z.records, k)
	return nil
}

// Has reports whether any zone holds the record with the given value.
func (z *Zone) Has(name, recordType, value string) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, r := range z.records {
		if certificate.FQDN(r.Name) == certificate.FQDN(name) && r.Type == recordType && r.Value == value {
			return true
		}
	}
	return false
}

// Records returns every stored record ordered by name and type.
func (z *Zone) Records() []certificate.Record {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]certificate.Record, 0, len(z.records))
	for _, r := range z.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Upserts returns the number of UpsertRecord calls that succeeded.
func (z *Zone) Upserts() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.upserts
}

func (z *Zone) knows(zoneID string) bool {
	for _, id := range z.zones {
		if id == zoneID {
			return true
		}
	}
	return false
}

func key(zoneID string, rec certificate.Record) string {
	return zoneID + "|" + certificate.FQDN(rec.Name) + "|" + rec.Type
}
