package errors

// Code is a machine-readable error code of the form CATEGORY_NNN, where
// CATEGORY is a short identifier (AUTH, VAL, INT, ...) that determines the
// HTTP status the error maps to.
//
// Codes are stable once assigned: clients and dashboards key on them.
type Code string

// Error code categories:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeInvalidCertificate indicates a published signing certificate
	// could not be decoded into a public key.
	CodeInvalidCertificate Code = "VAL_010"

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the token's exp claim has passed.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates a credential that failed
	// verification for an unclassified reason.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeMalformedToken indicates the credential is not a parseable
	// signed token (wrong segment count, bad encoding, unsupported alg).
	CodeMalformedToken Code = "AUTH_010"

	// CodeBadSignature indicates the signature did not verify against the
	// key named by the token's kid.
	CodeBadSignature Code = "AUTH_011"

	// CodeTokenNotYetValid indicates the token is dated in the future
	// (iat or nbf after the current time).
	CodeTokenNotYetValid Code = "AUTH_012"

	// CodeMissingSubject indicates a verified token without a sub claim.
	CodeMissingSubject Code = "AUTH_013"

	// CodeUnknownSigningKey indicates the token's kid could not be resolved
	// even after refreshing the key set from the identity provider.
	CodeUnknownSigningKey Code = "AUTH_014"

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableKeyProvider indicates the identity provider's
	// discovery or key set endpoint could not be reached or parsed.
	CodeUnavailableKeyProvider Code = "UNAVAIL_010"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
