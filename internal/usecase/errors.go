package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/resilience"
)

type ErrorCode string

const (
	ErrorValidation      ErrorCode = "VALIDATION_ERROR"
	ErrorExchangePending ErrorCode = "EXCHANGE_PENDING"
	ErrorClient          ErrorCode = "CLIENT_ERROR"
	ErrorAuth            ErrorCode = "AUTH_ERROR"
	ErrorServer          ErrorCode = "SERVER_ERROR"
	ErrorTransport       ErrorCode = "TRANSPORT_ERROR"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

// ErrExchangePending is returned when a submission arrives while another
// exchange is still in flight.
var ErrExchangePending = newError(ErrorExchangePending, "exchange_pending", nil)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func validationError(reason string) *Error {
	return newError(ErrorValidation, reason, nil)
}

// Classify maps a failure to its ErrorCode. A *Error keeps its own code;
// remote failures are classified by status or transport failure.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	if code, ok := resilience.StatusCode(err); ok {
		switch {
		case code == http.StatusUnauthorized:
			return ErrorAuth
		case code >= 400 && code < 500:
			return ErrorClient
		case code >= 500:
			return ErrorServer
		}
	}
	if assistant.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorTransport
	}
	return ErrorInternal
}

// remoteError wraps a failed remote call in a classified *Error.
func remoteError(reason string, err error) *Error {
	return newError(Classify(err), reason, err)
}
