package assistant

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError reports a request that never produced a response: DNS or
// connection failures, resets and client-side timeouts.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("assistant: %s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError captures a non-2xx response. Code and Message are decoded from
// the service's {"error","message"} payload when present.
type ServiceError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	URL        string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant: %s: status %d from %s: %s", e.Op, e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("assistant: %s: status %d from %s", e.Op, e.StatusCode, e.URL)
}

func (e *ServiceError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *ServiceError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func (e *ServiceError) IsClient() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func (e *ServiceError) IsServer() bool {
	return e.StatusCode >= 500
}

// AsServiceError unwraps err to a *ServiceError.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsNetworkError reports whether err is, or wraps, a *NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
