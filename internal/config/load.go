package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "stackforge.yaml"

// LoadFile reads the configuration from a YAML file, applies environment
// overrides and defaults, and validates the result.
func LoadFile(path string) (Environment, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return Environment{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var env Environment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return Environment{}, &errdefs.ConfigurationError{Field: path, Message: err.Error()}
	}

	return finish(env, os.Getenv)
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (Environment, error) {
	return finish(Environment{}, os.Getenv)
}

// Load picks the config file (explicit path, ./stackforge.yaml, or none) and
// loads it.
func Load(path string) (Environment, error) {
	if path != "" {
		return LoadFile(path)
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return LoadFile(DefaultConfigFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Environment{}, fmt.Errorf("failed to stat %s: %w", DefaultConfigFile, err)
	}
	return FromEnv()
}

func finish(env Environment, getenv func(string) string) (Environment, error) {
	if err := ApplyEnv(&env, getenv); err != nil {
		return Environment{}, err
	}
	ApplyDefaults(&env)
	if err := env.Validate(); err != nil {
		return Environment{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return env, nil
}

// ApplyEnv overlays environment variables on env. Variables win over the file.
//
// Environment Variables:
//   - AWS_REGION
//   - STACKFORGE_TIER (falls back to ENV)
//   - DOMAIN_NAME
//   - STACKFORGE_PROJECT
//   - STACKFORGE_VPC_CIDR
//   - STACKFORGE_AZ_COUNT
//   - STACKFORGE_AZS (comma separated)
//   - STACKFORGE_IMAGE
//   - STACKFORGE_CONTAINER_PORT
//   - STACKFORGE_STATE_BUCKET
//   - STACKFORGE_LOCK_TABLE
//   - STACKFORGE_LOCK_MODE
//   - STACKFORGE_DNS_PROVIDER
//   - STACKFORGE_HOSTED_ZONE_ID
func ApplyEnv(env *Environment, getenv func(string) string) error {
	setString := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := strings.TrimSpace(getenv(key)); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, key string) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errdefs.Configf(key, "not an integer: %q", v)
		}
		*dst = n
		return nil
	}

	setString(&env.Region, "AWS_REGION", "AWS_DEFAULT_REGION")
	setString(&env.Domain, "DOMAIN_NAME")
	setString(&env.Project, "STACKFORGE_PROJECT")
	setString(&env.Network.CIDR, "STACKFORGE_VPC_CIDR")
	setString(&env.Container.Image, "STACKFORGE_IMAGE")
	setString(&env.Backend.Bucket, "STACKFORGE_STATE_BUCKET")
	setString(&env.Backend.LockTable, "STACKFORGE_LOCK_TABLE")
	setString(&env.DNS.Provider, "STACKFORGE_DNS_PROVIDER")
	setString(&env.DNS.ZoneID, "STACKFORGE_HOSTED_ZONE_ID")

	var mode string
	setString(&mode, "STACKFORGE_LOCK_MODE")
	if mode != "" {
		env.Backend.LockMode = LockMode(mode)
	}

	var tier string
	setString(&tier, "STACKFORGE_TIER", "ENV")
	if tier != "" {
		parsed, err := ParseTier(tier)
		if err != nil {
			return err
		}
		env.Tier = parsed
	}

	if azs := strings.TrimSpace(getenv("STACKFORGE_AZS")); azs != "" {
		env.Network.AZs = nil
		for _, az := range strings.Split(azs, ",") {
			if az = strings.TrimSpace(az); az != "" {
				env.Network.AZs = append(env.Network.AZs, az)
			}
		}
	}

	if err := setInt(&env.Network.AZCount, "STACKFORGE_AZ_COUNT"); err != nil {
		return err
	}
	return setInt(&env.Container.Port, "STACKFORGE_CONTAINER_PORT")
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(env *Environment) {
	if env.Project == "" {
		env.Project = DefaultProject
	}
	if env.Region == "" {
		env.Region = DefaultRegion
	}
	if env.Tier == "" {
		env.Tier = TierDev
	}
	if env.Network.CIDR == "" {
		env.Network.CIDR = DefaultVPCCIDR
	}
	if env.Network.AZCount == 0 && len(env.Network.AZs) == 0 {
		env.Network.AZCount = DefaultAZCount
	}
	if env.Container.Port == 0 {
		env.Container.Port = DefaultContainerPort
	}
	if env.Logging.RetentionDays == 0 {
		env.Logging.RetentionDays = DefaultRetentionDays
	}
	if env.Backend.Bucket == "" {
		env.Backend.Bucket = DefaultStateBucket
	}
	if env.Backend.LockTable == "" {
		env.Backend.LockTable = DefaultLockTable
	}
	if env.Backend.LockMode == "" {
		env.Backend.LockMode = LockModeBlock
	}
	if env.DNS.Provider == "" {
		env.DNS.Provider = DNSProviderRoute53
	}
	if env.Parallelism == 0 {
		env.Parallelism = DefaultParallelism
	}
}
