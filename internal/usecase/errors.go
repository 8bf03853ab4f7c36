package usecase

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrorConfiguration ErrorKind = "CONFIGURATION"
	ErrorUnauthorized  ErrorKind = "UNAUTHORIZED"
	ErrorMalformed     ErrorKind = "MALFORMED_INPUT"
	ErrorCollaborator  ErrorKind = "COLLABORATOR_FAILURE"
)

type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message renders the error as chat-visible text.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return "ERROR: " + e.Err.Error()
	}
	return "ERROR: " + e.Reason
}

func newError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
