package kimai

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed operation for the caller.
type ErrorKind string

const (
	// ErrorValidation means the invocation never reached the network.
	ErrorValidation ErrorKind = "validation"
	// ErrorClient means Kimai rejected the request (400/404/409/422).
	ErrorClient ErrorKind = "client"
	// ErrorPermission means Kimai denied access (401/403).
	ErrorPermission ErrorKind = "permission"
	// ErrorNotFound means the addressed resource does not exist.
	ErrorNotFound ErrorKind = "not_found"
	// ErrorConflict means the request conflicts with upstream state,
	// e.g. starting a timer while another one is running.
	ErrorConflict ErrorKind = "conflict"
	// ErrorServer means Kimai answered with a 5xx.
	ErrorServer ErrorKind = "server"
	// ErrorTransport means no response was obtained at all.
	ErrorTransport ErrorKind = "transport"
	// ErrorPartial means a multi-step operation succeeded only partially.
	ErrorPartial ErrorKind = "partial"
)

// APIError is an error from the Kimai API or the transport below it.
type APIError struct {
	Kind        ErrorKind
	StatusCode  int
	Message     string
	FieldErrors map[string][]string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("kimai: %s (status %d)", e.Message, e.StatusCode)
	}
	return "kimai: " + e.Message
}

// AsAPIError unwraps err into an *APIError if it carries one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
