package auth

import "context"

// contextKey is an unexported type used for context keys in this package.
// Using a distinct type prevents collisions with keys from other packages.
type contextKey int

const (
	// identityKey stores the authenticated Identity in the context.
	identityKey contextKey = iota
)

// ContextWithIdentity returns a new context with the given Identity attached.
// The identity can later be retrieved with [IdentityFromContext].
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the identity and true if present, or nil and false if the request
// is anonymous.
//
// Example:
//
//	identity, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    http.Error(w, "sign in to list bookings", http.StatusUnauthorized)
//	    return
//	}
//	bookings := store.ListFor(identity.Subject())
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok && identity != nil
}

// MustIdentityFromContext retrieves the Identity from the context, panicking
// if no identity is present. Only use it behind [RequireIdentity].
func MustIdentityFromContext(ctx context.Context) Identity {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; ensure RequireIdentity guards this handler")
	}
	return identity
}
