// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable max attempts,
// initial delay and maximum delay. The apply engine uses it for provider calls
// that fail with a retryable provider error (throttling, eventual consistency).
package retry
