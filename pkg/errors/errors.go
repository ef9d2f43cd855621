// Package errors provides the structured error type used across the
// bookings authentication subsystem.
//
// Every failure carries a machine-readable [Code] whose category decides
// how the error is presented to clients:
//
//   - AUTH: a credential was supplied but could not be verified (401)
//   - VAL: input or published key material is invalid (400)
//   - UNAVAIL: the identity provider could not be reached (503)
//   - INT: configuration or unexpected internal failures (500)
//
// # Usage
//
//	err := errors.New(errors.CodeMalformedToken, "auth: token is malformed")
//
//	if errors.IsAuthentication(err) {
//	    // reject the request with 401
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Warn("verification failed", "code", e.Code)
//	}
package errors
