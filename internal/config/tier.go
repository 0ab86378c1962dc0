package config

import (
	"fmt"
	"strings"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// Tier is a deployment tier.
type Tier string

const (
	TierDev     Tier = "dev"
	TierStaging Tier = "staging"
	TierProd    Tier = "prod"
)

// Tiers lists every supported tier in promotion order.
var Tiers = []Tier{TierDev, TierStaging, TierProd}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, err := t.DesiredCount(); err != nil {
		return "", err
	}
	return t, nil
}

// DesiredCount returns the number of service tasks to run for the tier.
func (t Tier) DesiredCount() (int, error) {
	switch t {
	case TierDev:
		return 1, nil
	case TierStaging:
		return 2, nil
	case TierProd:
		return 3, nil
	default:
		return 0, errdefs.Configf("tier", "unknown deployment tier %q (want one of dev, staging, prod)", string(t))
	}
}

func (t Tier) String() string {
	return string(t)
}

// UnmarshalText lets YAML and flag parsing reject unknown tiers early.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return fmt.Errorf("invalid tier: %w", err)
	}
	*t = parsed
	return nil
}
