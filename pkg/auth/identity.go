// Package auth authenticates requests to the bookings API.
//
// A request carries a compact JWS bearer token in its Authorization header.
// The [Filter] extracts the token and hands it to a [TokenVerifier], which
// resolves the signing key by kid from a [KeySetCache]. The cache is filled
// from the identity provider's published key set by a [KeySetFetcher] and is
// refreshed once whenever a token names a kid it has not seen, which is how
// key rotation is picked up without restarts.
//
// A verified token yields an [Identity] stored in the request context. A
// request without a bearer token proceeds anonymously; a request with a
// token that fails verification is rejected and never downgraded to
// anonymous.
//
// Outside production, a [FakeTokenPolicy] may admit unsigned "fake:" tokens
// so local and integration environments can authenticate without an
// identity provider.
package auth

import "slices"

// Identity is an authenticated caller. An Identity is only ever created
// from a fully verified token or from a fake token admitted by policy.
type Identity interface {
	// Subject returns the token's sub claim.
	Subject() string

	// Authorities returns the granted authorities. Verified tokens carry
	// none; the slice is a copy and may be modified by the caller.
	Authorities() []string
}

// BasicIdentity is the Identity produced by this package.
type BasicIdentity struct {
	subject     string
	authorities []string
}

// NewBasicIdentity creates an identity for subject. The authorities slice is
// copied.
func NewBasicIdentity(subject string, authorities ...string) *BasicIdentity {
	return &BasicIdentity{
		subject:     subject,
		authorities: slices.Clone(authorities),
	}
}

// Subject implements [Identity].
func (i *BasicIdentity) Subject() string { return i.subject }

// Authorities implements [Identity].
func (i *BasicIdentity) Authorities() []string {
	if len(i.authorities) == 0 {
		return []string{}
	}
	return slices.Clone(i.authorities)
}

// HasAuthority reports whether the identity was granted authority.
func (i *BasicIdentity) HasAuthority(authority string) bool {
	return slices.Contains(i.authorities, authority)
}

// String returns the subject, for logging.
func (i *BasicIdentity) String() string { return i.subject }
