package provisioning

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/engine"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

// ValidationError represents a preflight error or warning.
type ValidationError struct {
	Field    string // Configuration field that failed validation
	Message  string // Human-readable error message
	Severity string // "error" or "warning"
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ve.Severity, ve.Field, ve.Message)
}

// IsError returns true if this is an error (not a warning).
func (ve ValidationError) IsError() bool {
	return ve.Severity == "error"
}

// ValidationPhase checks the environment before any node is declared.
type ValidationPhase struct{}

// NewValidationPhase creates a new validation phase.
func NewValidationPhase() *ValidationPhase {
	return &ValidationPhase{}
}

// Name implements the Phase interface.
func (vp *ValidationPhase) Name() string {
	return "validation"
}

// Provision implements the Phase interface. Warnings are reported through
// the observer; any error fails the phase with a ConfigurationError.
func (vp *ValidationPhase) Provision(ctx *Context) error {
	var errs []string
	for _, ve := range Validate(ctx.Env, ctx.ZoneID) {
		if ve.IsError() {
			errs = append(errs, ve.Error())
			continue
		}
		ctx.Observer.Event(engine.Event{Type: engine.EventValidationWarning, Resource: ve.Field, Message: ve.Message})
	}
	if len(errs) > 0 {
		return &errdefs.ConfigurationError{Message: "preflight validation failed:\n  " + strings.Join(errs, "\n  ")}
	}
	return nil
}

// Validate runs the preflight checks for env and the resolved zone.
func Validate(env config.Environment, zoneID string) []ValidationError {
	var errs []ValidationError
	add := func(severity, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: severity})
	}

	if err := env.Validate(); err != nil {
		add("error", "environment", "%v", err)
		return errs
	}
	if zoneID == "" {
		add("error", "dns.zoneId", "no DNS zone resolved for %s", env.Subdomain())
	}
	if _, err := env.Subnets(); err != nil {
		add("error", "network", "%v", err)
	}

	if prefix, err := netip.ParsePrefix(env.Network.CIDR); err == nil && prefix.Bits() > 16 {
		add("warning", "network.cidr", "CIDR prefix /%d leaves little room, /16 is recommended", prefix.Bits())
	}
	if env.Tier == config.TierProd && len(env.AvailabilityZones()) < 2 {
		add("warning", "network.azs", "prod runs in a single availability zone")
	}
	if env.Container.Image == "" {
		add("warning", "container.image", "no image configured, the service runs the repository's latest tag")
	}
	return errs
}
