package wire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDecodeFailed marks an error frame whose payload was not a valid
// Error message. The status and request id are still reported.
var ErrDecodeFailed = errors.New("error body could not be decoded")

// APIError is an error reported by the server in an inbound frame with
// status >= 400.
type APIError struct {
	Status    int
	RequestID string
	Code      string
	Message   string
	Errors    []string
	// Err is set when the error body could not be decoded.
	Err error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error: status %d for request %q", e.Status, e.RequestID)
	if e.Code != "" {
		fmt.Fprintf(&b, ", code %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ", message %q", e.Message)
	}
	if len(e.Errors) > 0 {
		fmt.Fprintf(&b, ", errors [%s]", strings.Join(e.Errors, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAPIError reports whether err is or wraps an *APIError.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

func newAPIError(status int, requestID string, payload []byte) *APIError {
	apiErr := &APIError{Status: status, RequestID: requestID}
	msg, err := UnmarshalError(payload)
	if err != nil {
		apiErr.Err = fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		return apiErr
	}
	apiErr.Code = msg.Code
	apiErr.Message = msg.Message
	apiErr.Errors = msg.Errors
	return apiErr
}
