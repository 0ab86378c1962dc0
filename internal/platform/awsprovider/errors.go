package awsprovider

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

// Error codes, from API exceptions and Cloud Control handler errors, that
// describe a transient condition.
var retryableCodes = map[string]bool{
	"Throttling":                      true,
	"ThrottlingException":             true,
	"TooManyRequestsException":        true,
	"RequestLimitExceeded":            true,
	"ConcurrentOperationException":    true,
	"ConcurrentModification":          true,
	"PriorRequestNotComplete":         true,
	"ServiceUnavailable":              true,
	"InternalFailure":                 true,
	"ServiceInternalError":            true,
	"ServiceInternalErrorException":   true,
	"NetworkFailure":                  true,
	"NetworkFailureException":         true,
	"HandlerInternalFailureException": true,
	"ResourceConflict":                true,
	"NotStabilized":                   true,
}

var notFoundCodes = map[string]bool{
	"NotFound":                  true,
	"ResourceNotFoundException": true,
	"NoSuchHostedZone":          true,
}

// classify turns an SDK error into a ProviderAPIError, or into an error
// wrapping provider.ErrNotFound for missing resources.
func classify(node string, op provider.Operation, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &errdefs.ProviderAPIError{Node: node, Operation: string(op), Err: err}
	}
	return codeError(node, op, apiErr.ErrorCode(), err)
}

func codeError(node string, op provider.Operation, code string, err error) error {
	if notFoundCodes[code] {
		return fmt.Errorf("%s %s: %w: %v", op, node, provider.ErrNotFound, err)
	}
	return &errdefs.ProviderAPIError{
		Node:      node,
		Operation: string(op),
		Code:      code,
		Retryable: retryableCodes[code],
		Err:       err,
	}
}

// isCode reports whether err carries the given API error code.
func isCode(err error, code string) bool {
	var apiErr *errdefs.ProviderAPIError
	if errors.As(err, &apiErr) && apiErr.Code == code {
		return true
	}
	var smithyErr smithy.APIError
	return errors.As(err, &smithyErr) && smithyErr.ErrorCode() == code
}
