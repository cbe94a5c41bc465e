// Package resilience provides decorators that add retry, pacing and
// credential handling around outbound calls.
package resilience

import (
	"context"
	"errors"
	"net/http"
)

// Func is a network call with its arguments already bound.
type Func[T any] func(ctx context.Context) (T, error)

// HTTPStatusCoder is implemented by errors that carry a response status.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusCode extracts the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var sc HTTPStatusCoder
	if !errors.As(err, &sc) {
		return 0, false
	}
	return sc.HTTPStatusCode(), true
}

// IsClientError reports whether err carries a 4xx status.
func IsClientError(err error) bool {
	code, ok := StatusCode(err)
	return ok && code >= http.StatusBadRequest && code < http.StatusInternalServerError
}
