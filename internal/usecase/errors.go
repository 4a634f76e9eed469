package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	ErrorCompletion       ErrorCode = "COMPLETION_ERROR"
	ErrorStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrorRelayFailure     ErrorCode = "RELAY_FAILURE"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

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

// CodeOf reports the usecase code carried by err, or ErrorInternal.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}
