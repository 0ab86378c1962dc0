package config

import (
	"errors"
	"net/netip"
	"regexp"
	"slices"
	"strings"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// MaxVPCPrefix is the smallest VPC that still yields /28 subnets, the
// smallest AWS accepts, after AllocateSubnets adds its 8 bits.
const MaxVPCPrefix = 28 - SubnetNewBits

var (
	projectPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,30}[a-z0-9]$`)
	domainPattern  = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)
	regionPattern  = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d$`)

	// CloudWatch Logs only accepts these retention periods.
	validRetentionDays = []int{1, 3, 5, 7, 14, 30, 60, 90, 120, 150, 180, 365, 400, 545, 731, 1096, 1827, 2192, 2557, 2922, 3288, 3653}
)

// Validate checks the environment and returns every problem found, joined.
// Each problem is a *errdefs.ConfigurationError.
func (e Environment) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, errdefs.Configf(field, format, args...))
	}

	if !projectPattern.MatchString(e.Project) {
		add("project", "%q must be 3-32 lowercase letters, digits or hyphens", e.Project)
	}
	if !regionPattern.MatchString(e.Region) {
		add("region", "%q is not an AWS region", e.Region)
	}
	if _, err := e.Tier.DesiredCount(); err != nil {
		errs = append(errs, err)
	}
	if e.Domain == "" {
		add("domain", "base domain is required")
	} else if !domainPattern.MatchString(strings.ToLower(e.Domain)) {
		add("domain", "%q is not a valid domain name", e.Domain)
	}

	if p, err := netip.ParsePrefix(e.Network.CIDR); err != nil || !p.Addr().Is4() {
		add("network.cidr", "%q is not an IPv4 CIDR block", e.Network.CIDR)
	} else if p.Bits() < 16 || p.Bits() > MaxVPCPrefix {
		add("network.cidr", "VPC prefix length must be between /16 and /%d, got /%d", MaxVPCPrefix, p.Bits())
	}
	if len(e.Network.AZs) == 0 && e.Network.AZCount < 1 {
		add("network.azCount", "at least one availability zone is required")
	}
	if len(e.Network.AZs) == 0 && e.Network.AZCount > 26 {
		add("network.azCount", "%d exceeds the zones a region can offer", e.Network.AZCount)
	}
	if slices.Contains(e.Network.AZs, "") {
		add("network.azs", "availability zone labels must not be empty")
	}

	// An empty image means the service runs the managed repository's image.
	if strings.ContainsAny(e.Container.Image, " \t\n") {
		add("container.image", "%q is not an image reference", e.Container.Image)
	}
	if e.Container.Port < 1 || e.Container.Port > 65535 {
		add("container.port", "%d is not a valid port", e.Container.Port)
	}
	if !slices.Contains(validRetentionDays, e.Logging.RetentionDays) {
		add("logging.retentionDays", "%d is not a CloudWatch Logs retention period", e.Logging.RetentionDays)
	}

	if e.Backend.Bucket == "" {
		add("backend.bucket", "state bucket is required")
	}
	if e.Backend.LockTable == "" {
		add("backend.lockTable", "lock table is required")
	}
	if e.Backend.LockMode != LockModeBlock && e.Backend.LockMode != LockModeFailFast {
		add("backend.lockMode", "%q must be %q or %q", e.Backend.LockMode, LockModeBlock, LockModeFailFast)
	}
	if e.DNS.Provider != DNSProviderRoute53 && e.DNS.Provider != DNSProviderCloudflare {
		add("dns.provider", "%q must be %q or %q", e.DNS.Provider, DNSProviderRoute53, DNSProviderCloudflare)
	}
	if e.Parallelism < 1 {
		add("parallelism", "must be at least 1, got %d", e.Parallelism)
	}

	if len(errs) == 0 {
		if _, err := e.Subnets(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
