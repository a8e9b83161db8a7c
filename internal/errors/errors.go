package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess        Code = 0
	CodeInternal       Code = 1
	CodeUsage          Code = 2
	CodeInput          Code = 3
	CodeAuth           Code = 10
	CodeRateLimited    Code = 11
	CodeNotAvailable   Code = 12
	CodeRemote         Code = 13
	CodeTransport      Code = 14
	CodeInvalidKey     Code = 20
	CodeInvalidAddress Code = 21
)

// Error is a typed CLI error that carries a stable error code. Status is the
// HTTP status of the response that produced it, or 0 when there was none.
type Error struct {
	Code    Code
	Message string
	Status  int
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func WithStatus(code Code, status int, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err is a typed error with the given code.
func Is(err error, code Code) bool {
	cliErr, ok := As(err)
	return ok && cliErr.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeName is the snake_case label used in output envelopes and the journal.
func TypeName(err error) string {
	cliErr, ok := As(err)
	if !ok {
		return "internal_error"
	}
	switch cliErr.Code {
	case CodeUsage:
		return "usage_error"
	case CodeInput:
		return "input_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeNotAvailable:
		return "not_available"
	case CodeRemote:
		return "remote_error"
	case CodeTransport:
		return "transport_error"
	case CodeInvalidKey:
		return "invalid_key"
	case CodeInvalidAddress:
		return "invalid_address"
	default:
		return "internal_error"
	}
}
