package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "" if
// there is none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
//
// Example:
//
//	if errors.HasCode(err, errors.CodeUnknownSigningKey) {
//	    // the provider does not publish this kid
//	}
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsAuthentication reports whether err is an AUTH_xxx error.
func IsAuthentication(err error) bool {
	return hasCategory(err, "AUTH")
}

// IsValidation reports whether err is a VAL_xxx error.
func IsValidation(err error) bool {
	return hasCategory(err, "VAL")
}

// IsUnavailable reports whether err is an UNAVAIL_xxx error.
func IsUnavailable(err error) bool {
	return hasCategory(err, "UNAVAIL")
}

// IsInternal reports whether err is an INT_xxx error.
func IsInternal(err error) bool {
	return hasCategory(err, "INT")
}

// IsRetryable reports whether the failure is transient. Only provider
// outages and timeouts qualify; a rejected credential never becomes valid
// by retrying.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UNAVAIL":
		return true
	default:
		return false
	}
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}
