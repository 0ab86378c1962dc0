package errdefs

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError reports invalid or missing input. It is always raised
// before any provider call is made.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Configf builds a ConfigurationError for field.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DependencyError reports a node evaluated before one of its dependencies
// was resolved. It indicates a graph construction bug.
type DependencyError struct {
	Node    string
	Depends string
	Message string
}

func (e *DependencyError) Error() string {
	switch {
	case e.Node != "" && e.Depends != "":
		return fmt.Sprintf("dependency error: %s -> %s: %s", e.Node, e.Depends, e.Message)
	case e.Node != "":
		return fmt.Sprintf("dependency error: %s: %s", e.Node, e.Message)
	default:
		return "dependency error: " + e.Message
	}
}

// ProviderAPIError wraps a failed call to the provider API.
type ProviderAPIError struct {
	Node      string
	Operation string
	Code      string
	Retryable bool
	Err       error
}

func (e *ProviderAPIError) Error() string {
	msg := fmt.Sprintf("provider error: %s %s", e.Operation, e.Node)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderAPIError) Unwrap() error {
	return e.Err
}

// ValidationTimeoutError reports that certificate validation did not finish
// in the allotted window. The certificate is left awaiting DNS propagation
// and the wait can be resumed without requesting a new certificate.
type ValidationTimeoutError struct {
	CertificateARN string
	RecordFQDN     string
	Timeout        time.Duration
}

func (e *ValidationTimeoutError) Error() string {
	return fmt.Sprintf("certificate %s not validated within %s (record %s)", e.CertificateARN, e.Timeout, e.RecordFQDN)
}

// LockContentionError reports that the state lock is held by another run.
type LockContentionError struct {
	LockID string
	Holder string
	Since  time.Time
}

func (e *LockContentionError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("state lock %s is held by another run", e.LockID)
	}
	return fmt.Sprintf("state lock %s is held by %s since %s", e.LockID, e.Holder, e.Since.Format(time.RFC3339))
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsDependency reports whether err is a DependencyError.
func IsDependency(err error) bool {
	var target *DependencyError
	return errors.As(err, &target)
}

// IsRetryable reports whether err is a provider error worth retrying.
func IsRetryable(err error) bool {
	var target *ProviderAPIError
	return errors.As(err, &target) && target.Retryable
}

// IsValidationTimeout reports whether err is a ValidationTimeoutError.
func IsValidationTimeout(err error) bool {
	var target *ValidationTimeoutError
	return errors.As(err, &target)
}

// IsLockContention reports whether err is a LockContentionError.
func IsLockContention(err error) bool {
	var target *LockContentionError
	return errors.As(err, &target)
}
