package certificate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provisioning/certificate"
	"github.com/imamik/stackforge/internal/provisioning/certificate/fake"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

const zoneID = "Z0123456789"

func testTimeouts() config.Timeouts {
	return config.Timeouts{
		CertificateValidation: 100 * time.Millisecond,
		CertificateOptions:    time.Second,
		ValidationPoll:        5 * time.Millisecond,
	}
}

func TestWorkflow_Run(t *testing.T) {
	t.Parallel()
	zone := fake.NewZone("example.com", zoneID)
	ca := fake.NewAuthority(zone)
	w := certificate.NewWorkflow(ca, zone, certificate.WithTimeouts(testTimeouts()))

	cert, err := w.Run(context.Background(), "dev.example.com", zoneID, nil)
	require.NoError(t, err)

	assert.Equal(t, certificate.StateIssued, w.State(cert.ARN))
	assert.Equal(t, certificate.StatusIssued, ca.Status(cert.ARN))
	records := zone.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "CNAME", records[0].Type)
	assert.Equal(t, int64(certificate.ValidationTTL), records[0].TTL)
	assert.Equal(t, cert.Validation[0].Name, records[0].Name)
}

func TestWorkflow_RequestWaitsForValidationOptions(t *testing.T) {
	t.Parallel()
	zone := fake.NewZone("example.com", zoneID)
	ca := fake.NewAuthority(zone)
	ca.OptionsAfter = 3
	w := certificate.NewWorkflow(ca, zone, certificate.WithTimeouts(testTimeouts()))

	cert, err := w.Request(context.Background(), "dev.example.com", nil)
	require.NoError(t, err)
	rec, err := certificate.PrimaryValidation(cert)
	require.NoError(t, err)
	assert.Equal(t, "dev.example.com", rec.DomainName)
	assert.Equal(t, certificate.StateRequested, w.State(cert.ARN))
	assert.Equal(t, 1, ca.Requests())
}

func TestWorkflow_DeleteForgetsRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	zone := fake.NewZone("example.com", zoneID)
	ca := fake.NewAuthority(zone)
	w := certificate.NewWorkflow(ca, zone, certificate.WithTimeouts(testTimeouts()))

	first, err := w.Request(ctx, "dev.example.com", nil)
	require.NoError(t, err)
	require.NoError(t, w.Delete(ctx, first.ARN))
	assert.Empty(t, w.State(first.ARN))

	second, err := w.Request(ctx, "dev.example.com", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ARN, second.ARN)
	assert.Equal(t, 2, ca.Requests())
	assert.Equal(t, []string{second.ARN}, ca.Live())

	assert.ErrorIs(t, w.Delete(ctx, first.ARN), provider.ErrNotFound)
}

func TestWorkflow_RequestGivesUpWhenOptionsNeverAppear(t *testing.T) {
	t.Parallel()
	zone := fake.NewZone("example.com", zoneID)
	ca := fake.NewAuthority(zone)
	ca.OptionsAfter = 1 << 30
	timeouts := testTimeouts()
	timeouts.CertificateOptions = 30 * time.Millisecond
	w := certificate.NewWorkflow(ca, zone, certificate.WithTimeouts(timeouts))

	cert, err := w.Request(context.Background(), "dev.example.com", nil)
	require.Error(t, err)
	require.NotNil(t, cert)
	assert.NotEmpty(t, cert.ARN)

	// Asking again in the same process reuses the outstanding request.
	_, _ = w.Request(context.Background(), "dev.example.com", nil)
	assert.Equal(t, 1, ca.Requests())
}

func TestWorkflow_ValidationTimeoutKeepsStateAndResumes(t *testing.T) {
	t.Parallel()
	zone := fake.NewZone("example.com", zoneID)
	ca := fake.NewAuthority(zone)
	w := certificate.NewWorkflow(ca, zone, certificate.WithTimeouts(testTimeouts()))
	ctx := context.Background()

	cert, err := w.Request(ctx, "dev.example.com", nil)
	require.NoError(t, err)
	rec, err := certificate.PrimaryValidation(cert)
	require.NoError(t, err)

	// The record is published to a different name, so validation stalls.
	stale := rec
	stale.Value = "_wrong.acm-validations.aws."
	require.NoError(t, w.PublishValidationRecord(ctx, zoneID, cert.ARN, stale))

	err = w.AwaitValidation(ctx, cert.ARN, certificate.FQDN(rec.Name))
	var timeoutErr *errdefs.ValidationTimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Equal(t, cert.ARN, timeoutErr.CertificateARN)
	assert.Equal(t, certificate.FQDN(rec.Name), timeoutErr.RecordFQDN)
	assert.Equal(t, certificate.StateAwaitingDNSPropagation, w.State(cert.ARN))

	// Upsert overwrites the record and the wait resumes on the same certificate.
	require.NoError(t, w.PublishValidationRecord(ctx, zoneID, cert.ARN, rec))
	require.NoError(t, w.AwaitValidation(ctx, cert.ARN, certificate.FQDN(rec.Name)))
	assert.Equal(t, certificate.StateIssued, w.State(cert.ARN))
	assert.Len(t, zone.Records(), 1)
	assert.Equal(t, 1, ca.Requests())
}

func TestWorkflow_CancelledWaitIsNotATimeout(t *testing.T) {
	t.Parallel()
	zone := fake.NewZone("example.com", zoneID)
	ca := fake.NewAuthority(nil)
	w := certificate.NewWorkflow(ca, zone, certificate.WithTimeouts(testTimeouts()))

	cert, err := w.Request(context.Background(), "dev.example.com", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = w.AwaitValidation(ctx, cert.ARN, "x")
	require.Error(t, err)
	assert.False(t, errdefs.IsValidationTimeout(err))
}

func TestFQDN(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "_abc.dev.example.com", certificate.FQDN("_ABC.dev.example.com."))
	assert.Equal(t, "example.com", certificate.FQDN("example.com"))
}
