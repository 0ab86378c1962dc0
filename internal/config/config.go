package config

import (
	"fmt"

	"github.com/imamik/stackforge/internal/util/naming"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultRegion        = "us-east-1"
	DefaultProject       = "tv-devops"
	DefaultVPCCIDR       = "10.0.0.0/16"
	DefaultAZCount       = 2
	DefaultContainerPort = 3000
	DefaultRetentionDays = 7
	DefaultParallelism   = 10
	DefaultStateBucket   = "tv-devops-cdktf-state"
	DefaultLockTable     = "tf-locks"
)

// LockMode selects how a run reacts to a state lock held by another run.
type LockMode string

const (
	LockModeBlock    LockMode = "block"
	LockModeFailFast LockMode = "fail-fast"
)

// DNS zone providers.
const (
	DNSProviderRoute53    = "route53"
	DNSProviderCloudflare = "cloudflare"
)

// Environment describes one deployment. It is immutable for the lifetime of
// a provisioning run; copy it rather than mutating shared values.
type Environment struct {
	Project     string          `yaml:"project"`
	Region      string          `yaml:"region"`
	Tier        Tier            `yaml:"tier"`
	Domain      string          `yaml:"domain"`
	Network     NetworkConfig   `yaml:"network"`
	Container   ContainerConfig `yaml:"container"`
	Logging     LoggingConfig   `yaml:"logging"`
	Backend     BackendConfig   `yaml:"backend"`
	DNS         DNSConfig       `yaml:"dns"`
	Parallelism int             `yaml:"parallelism"`
}

// NetworkConfig sizes the VPC.
type NetworkConfig struct {
	CIDR    string   `yaml:"cidr"`
	AZCount int      `yaml:"azCount"`
	AZs     []string `yaml:"azs"`
}

// ContainerConfig describes the application image.
type ContainerConfig struct {
	Image string `yaml:"image"`
	Port  int    `yaml:"port"`
}

// LoggingConfig controls the service log group.
type LoggingConfig struct {
	RetentionDays int `yaml:"retentionDays"`
}

// BackendConfig locates the remote state and its lock.
type BackendConfig struct {
	Bucket    string `yaml:"bucket"`
	LockTable string `yaml:"lockTable"`
	// DisableEncryption turns off server-side encryption of the state object.
	DisableEncryption bool     `yaml:"disableEncryption"`
	LockMode          LockMode `yaml:"lockMode"`
}

// DNSConfig selects where validation and alias records are written.
type DNSConfig struct {
	Provider string `yaml:"provider"`
	// ZoneID skips the hosted zone lookup when set.
	ZoneID string `yaml:"zoneId"`
}

// QualifiedProject returns the tier-prefixed project name used in resource names.
func (e Environment) QualifiedProject() string {
	return naming.Project(string(e.Tier), e.Project)
}

// Subdomain returns the public host name the certificate is issued for.
func (e Environment) Subdomain() string {
	return naming.Subdomain(string(e.Tier), e.Domain)
}

// StateKey returns the object key of this tier's state.
func (e Environment) StateKey() string {
	return naming.StateKey(string(e.Tier))
}

// LockID returns the identifier of the lock record guarding the state.
func (e Environment) LockID() string {
	return fmt.Sprintf("%s/%s", e.Backend.Bucket, e.StateKey())
}

// AvailabilityZones returns the AZ labels in allocation order. An explicit
// list wins; otherwise the first AZCount zones of the region are used
// (<region>a, <region>b, ...).
func (e Environment) AvailabilityZones() []string {
	if len(e.Network.AZs) > 0 {
		return append([]string(nil), e.Network.AZs...)
	}
	azs := make([]string, 0, e.Network.AZCount)
	for i := 0; i < e.Network.AZCount && i < 26; i++ {
		azs = append(azs, fmt.Sprintf("%s%c", e.Region, 'a'+i))
	}
	return azs
}

// Subnets returns the deterministic per-AZ subnet allocation.
func (e Environment) Subnets() ([]SubnetAllocation, error) {
	return AllocateSubnets(e.Network.CIDR, e.AvailabilityZones())
}
