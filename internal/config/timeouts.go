package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	CertificateValidation time.Duration // Blocking wait for the CA to validate the DNS record
	CertificateOptions    time.Duration // Wait for the CA to publish validation options
	ValidationPoll        time.Duration // Poll interval while waiting on the CA
	ProviderOperation     time.Duration // Upper bound for one asynchronous provider request
	LockWait              time.Duration // How long a blocking run waits for the state lock
	RetryMaxAttempts      int           // Maximum number of retry attempts for provider calls
	RetryInitialDelay     time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - STACKFORGE_TIMEOUT_CERT_VALIDATION (default: 5m)
//   - STACKFORGE_TIMEOUT_CERT_OPTIONS (default: 2m)
//   - STACKFORGE_VALIDATION_POLL_INTERVAL (default: 15s)
//   - STACKFORGE_TIMEOUT_PROVIDER_OPERATION (default: 20m)
//   - STACKFORGE_TIMEOUT_LOCK_WAIT (default: 10m)
//   - STACKFORGE_RETRY_MAX_ATTEMPTS (default: 5)
//   - STACKFORGE_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		CertificateValidation: parseDuration("STACKFORGE_TIMEOUT_CERT_VALIDATION", 5*time.Minute),
		CertificateOptions:    parseDuration("STACKFORGE_TIMEOUT_CERT_OPTIONS", 2*time.Minute),
		ValidationPoll:        parseDuration("STACKFORGE_VALIDATION_POLL_INTERVAL", 15*time.Second),
		ProviderOperation:     parseDuration("STACKFORGE_TIMEOUT_PROVIDER_OPERATION", 20*time.Minute),
		LockWait:              parseDuration("STACKFORGE_TIMEOUT_LOCK_WAIT", 10*time.Minute),
		RetryMaxAttempts:      parseInt("STACKFORGE_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay:     parseDuration("STACKFORGE_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}

	return i
}
