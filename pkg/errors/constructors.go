package errors

import (
	"errors"
	"fmt"
)

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps err with a code and message. Returns nil if err is nil.
//
// Example:
//
//	cert, err := x509.ParseCertificate(der)
//	if err != nil {
//	    return nil, errors.Wrap(err, errors.CodeInvalidCertificate, "auth: certificate is not valid X.509")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps err with a code and a formatted message. Returns nil if err
// is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Unauthorized creates a general authentication error.
func Unauthorized(message string) *Error {
	return New(CodeAuthentication, message)
}

// Unavailable creates a service unavailable error.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// FromError converts err to an *Error. Errors that already are (or wrap)
// an *Error are returned as found; anything else becomes an internal
// error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
