package provider

import (
	"fmt"

	"moff.io/wallet-shell/pkg/errors"
)

// APIError is a failed or rejected call to the gateway or the API, transport failures included.
type APIError struct {
	Endpoint string
	Status   int
	Code     string
	Message  string

	cause error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// IsAPIError reports whether err carries an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
