package certificate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/retry"
)

var errOptionsPending = errors.New("validation options not yet published")

// Workflow drives certificates through issuance. It remembers the state of
// every certificate it has seen in this process; handlers restore it from
// persisted outputs across runs.
type Workflow struct {
	ca       CertificateAuthority
	zone     DNSZone
	timeouts config.Timeouts
	observer engine.Observer

	mu        sync.Mutex
	states    map[string]State
	requested map[string]string
}

// WorkflowOption customises a Workflow.
type WorkflowOption func(*Workflow)

// WithTimeouts overrides the validation timeouts.
func WithTimeouts(t config.Timeouts) WorkflowOption {
	return func(w *Workflow) {
		w.timeouts = t
	}
}

// WithObserver sets the observer that receives progress messages.
func WithObserver(o engine.Observer) WorkflowOption {
	return func(w *Workflow) {
		w.observer = o.WithFields(map[string]string{"module": Module})
	}
}

// NewWorkflow creates a workflow over the given collaborators.
func NewWorkflow(ca CertificateAuthority, zone DNSZone, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		ca:        ca,
		zone:      zone,
		timeouts:  *config.LoadTimeouts(),
		observer:  engine.NopObserver{},
		states:    make(map[string]State),
		requested: make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Zone returns the DNS zone the workflow writes to.
func (w *Workflow) Zone() DNSZone {
	return w.zone
}

// State returns the last known state of a certificate, or "" when the
// workflow has not seen it.
func (w *Workflow) State(arn string) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[arn]
}

// restore records a state read back from persisted outputs. It never moves
// a certificate backwards.
func (w *Workflow) restore(arn string, s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rank(s) > rank(w.states[arn]) {
		w.states[arn] = s
	}
}

func (w *Workflow) transition(arn string, to State) {
	w.mu.Lock()
	from := w.states[arn]
	w.states[arn] = to
	w.mu.Unlock()
	if from != to {
		w.observer.Printf("[%s] certificate %s: %s -> %s", Module, arn, displayState(from), to)
	}
}

// Request asks the authority for a DNS-validated certificate for domain and
// waits, up to the options timeout, until the validation records are
// published. A repeated request for the same domain in this process reuses
// the certificate already requested.
func (w *Workflow) Request(ctx context.Context, domain string, tags map[string]string) (*Certificate, error) {
	w.mu.Lock()
	arn, ok := w.requested[domain]
	w.mu.Unlock()

	if !ok {
		var err error
		arn, err = w.ca.RequestCertificate(ctx, domain, tags)
		if err != nil {
			return nil, fmt.Errorf("request certificate for %s: %w", domain, err)
		}
		w.mu.Lock()
		w.requested[domain] = arn
		w.mu.Unlock()
		w.transition(arn, StateRequested)
	}

	cert, err := w.waitForOptions(ctx, arn)
	if err != nil {
		return &Certificate{ARN: arn, DomainName: domain}, err
	}
	return cert, nil
}

// Delete deletes the certificate and forgets it, so a later Request for
// its domain asks the authority for a new one. A certificate the authority
// no longer knows is forgotten too; the ErrNotFound is still returned.
func (w *Workflow) Delete(ctx context.Context, arn string) error {
	err := w.ca.DeleteCertificate(ctx, arn)
	if err != nil && !errors.Is(err, provider.ErrNotFound) {
		return err
	}
	w.mu.Lock()
	for domain, requested := range w.requested {
		if requested == arn {
			delete(w.requested, domain)
		}
	}
	delete(w.states, arn)
	w.mu.Unlock()
	return err
}

func (w *Workflow) waitForOptions(ctx context.Context, arn string) (*Certificate, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.timeouts.CertificateOptions)
	defer cancel()

	var cert *Certificate
	err := retry.WithExponentialBackoff(waitCtx, func() error {
		c, err := w.ca.DescribeCertificate(waitCtx, arn)
		if err != nil {
			if errdefs.IsRetryable(err) {
				return err
			}
			return retry.Fatal(err)
		}
		if len(c.Validation) == 0 || c.Validation[0].Name == "" {
			return errOptionsPending
		}
		cert = c
		return nil
	},
		retry.WithMaxRetries(math.MaxInt32),
		retry.WithInitialDelay(w.timeouts.ValidationPoll/10),
		retry.WithMaxDelay(w.timeouts.ValidationPoll),
	)
	if err != nil {
		return nil, fmt.Errorf("validation options for %s: %w", arn, err)
	}
	return cert, nil
}

// PrimaryValidation returns the validation record of the first requested
// domain.
func PrimaryValidation(cert *Certificate) (ValidationRecord, error) {
	if cert == nil || len(cert.Validation) == 0 {
		return ValidationRecord{}, errOptionsPending
	}
	return cert.Validation[0], nil
}

// PublishValidationRecord upserts the validation record into the zone.
func (w *Workflow) PublishValidationRecord(ctx context.Context, zoneID, arn string, rec ValidationRecord) error {
	if err := w.zone.UpsertRecord(ctx, zoneID, rec.Record()); err != nil {
		return fmt.Errorf("publish validation record %s: %w", rec.Name, err)
	}
	w.transition(arn, StateAwaitingDNSPropagation)
	return nil
}

// AwaitValidation blocks until the authority validated the certificate,
// up to the validation timeout. On timeout it returns a
// ValidationTimeoutError and the certificate stays AwaitingDNSPropagation;
// calling it again resumes the wait for the same certificate.
func (w *Workflow) AwaitValidation(ctx context.Context, arn, recordFQDN string) error {
	timeout := w.timeouts.CertificateValidation
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w.observer.Printf("[%s] waiting up to %s for %s to validate via %s", Module, timeout, arn, recordFQDN)
	if err := w.ca.WaitValidated(waitCtx, arn, w.timeouts.ValidationPoll); err != nil {
		if ctx.Err() == nil && (errors.Is(err, ErrNotValidated) || errors.Is(err, context.DeadlineExceeded)) {
			w.transition(arn, StateAwaitingDNSPropagation)
			return &errdefs.ValidationTimeoutError{CertificateARN: arn, RecordFQDN: recordFQDN, Timeout: timeout}
		}
		return fmt.Errorf("wait for validation of %s: %w", arn, err)
	}
	w.transition(arn, StateValidated)

	cert, err := w.ca.DescribeCertificate(ctx, arn)
	if err != nil {
		return fmt.Errorf("describe validated certificate %s: %w", arn, err)
	}
	if cert.Status != StatusIssued {
		return fmt.Errorf("certificate %s validated but status is %s", arn, cert.Status)
	}
	w.transition(arn, StateIssued)
	return nil
}

// Run executes the whole workflow for domain in zoneID.
func (w *Workflow) Run(ctx context.Context, domain, zoneID string, tags map[string]string) (*Certificate, error) {
	cert, err := w.Request(ctx, domain, tags)
	if err != nil {
		return nil, err
	}
	rec, err := PrimaryValidation(cert)
	if err != nil {
		return nil, err
	}
	if err := w.PublishValidationRecord(ctx, zoneID, cert.ARN, rec); err != nil {
		return nil, err
	}
	if err := w.AwaitValidation(ctx, cert.ARN, FQDN(rec.Name)); err != nil {
		return nil, err
	}
	cert.Status = StatusIssued
	return cert, nil
}

func rank(s State) int {
	switch s {
	case StateRequested:
		return 1
	case StateAwaitingDNSPropagation:
		return 2
	case StateValidated:
		return 3
	case StateIssued:
		return 4
	default:
		return 0
	}
}

func displayState(s State) string {
	if s == "" {
		return "none"
	}
	return string(s)
}
