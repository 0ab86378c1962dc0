package orchestration

import (
	"context"
	"fmt"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/platform/awsprovider"
	"github.com/imamik/stackforge/internal/platform/cloudflare"
	"github.com/imamik/stackforge/internal/platform/dynamodb"
	"github.com/imamik/stackforge/internal/platform/s3"
	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provisioning/certificate"
	"github.com/imamik/stackforge/internal/state"
)

// AWSOptions selects credentials and endpoints for NewAWSDependencies.
type AWSOptions struct {
	Session awsprovider.Session
	// CloudflareToken authenticates the Cloudflare DNS provider.
	CloudflareToken string
	Timeouts        *config.Timeouts
	Observer        engine.Observer
}

// NewAWSDependencies wires the AWS implementations: Cloud Control for
// generic resources, ACM for certificates, Route 53 or Cloudflare for DNS,
// S3 for state and DynamoDB for the lock.
func NewAWSDependencies(ctx context.Context, env config.Environment, opts AWSOptions) (Dependencies, error) {
	if opts.Session.Region == "" {
		opts.Session.Region = env.Region
	}
	if opts.Timeouts == nil {
		opts.Timeouts = config.LoadTimeouts()
	}
	if opts.Observer == nil {
		opts.Observer = engine.NopObserver{}
	}

	cfg, err := awsprovider.LoadConfig(ctx, opts.Session)
	if err != nil {
		return Dependencies{}, err
	}

	var zone certificate.DNSZone
	switch env.DNS.Provider {
	case config.DNSProviderCloudflare:
		if opts.CloudflareToken == "" {
			return Dependencies{}, fmt.Errorf("dns provider %s requires CLOUDFLARE_API_TOKEN", config.DNSProviderCloudflare)
		}
		zone = cloudflare.NewClient(opts.CloudflareToken)
	default:
		zone = awsprovider.NewRoute53(cfg)
	}

	workflow := certificate.NewWorkflow(awsprovider.NewACM(cfg), zone,
		certificate.WithTimeouts(*opts.Timeouts),
		certificate.WithObserver(opts.Observer),
	)
	router := provider.NewRouter(awsprovider.NewCloudControl(cfg,
		awsprovider.WithOperationTimeout(opts.Timeouts.ProviderOperation),
	))
	certificate.Register(router, workflow)

	objects := s3.NewClient(cfg, opts.Session.Endpoint)
	return Dependencies{
		Provider: router,
		Backend:  state.NewS3Backend(objects, env.Backend.Bucket, env.StateKey(), !env.Backend.DisableEncryption),
		Locker:   state.NewDynamoDBLocker(dynamodb.NewClient(cfg, opts.Session.Endpoint), env.Backend.LockTable),
		Zones:    zone,
		Prepare: func(ctx context.Context) error {
			return objects.EnsureBucket(ctx, env.Backend.Bucket)
		},
	}, nil
}
