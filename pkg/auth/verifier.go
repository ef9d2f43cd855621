package auth

import (
	"context"
	"crypto"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for auth spans.
const tracerName = "github.com/StricklySoft/bookings-auth/pkg/auth"

// maxTokenSize bounds the token length accepted for parsing.
const maxTokenSize = 16 << 10

// asymmetricMethods lists the accepted signing algorithms. Keys come from
// X.509 certificates, so symmetric algorithms and "none" are never valid.
var asymmetricMethods = []string{
	jwt.SigningMethodRS256.Alg(), jwt.SigningMethodRS384.Alg(), jwt.SigningMethodRS512.Alg(),
	jwt.SigningMethodPS256.Alg(), jwt.SigningMethodPS384.Alg(), jwt.SigningMethodPS512.Alg(),
	jwt.SigningMethodES256.Alg(), jwt.SigningMethodES384.Alg(), jwt.SigningMethodES512.Alg(),
	jwt.SigningMethodEdDSA.Alg(),
}

// KeyResolver resolves a key identifier to a verification key.
// [*KeySetCache] is the production implementation.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// Verifier verifies a bearer token and returns the identity it asserts.
// [*TokenVerifier] is the production implementation.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// TokenVerifier checks a compact JWS token: structure, signature against the
// key named by its kid, and the exp and iat claims. It holds no mutable
// state of its own and is safe for concurrent use.
type TokenVerifier struct {
	keys    KeyResolver
	now     func() time.Time
	leeway  time.Duration
	tracer  trace.Tracer
	metrics *Metrics
}

// VerifierOption configures a [TokenVerifier].
type VerifierOption func(*TokenVerifier)

// WithClock sets the time source used for exp and iat checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithClockSkew tolerates clock drift between the identity provider and
// this process when checking exp and iat.
func WithClockSkew(d time.Duration) VerifierOption {
	return func(v *TokenVerifier) {
		if d > 0 {
			v.leeway = d
		}
	}
}

// WithVerifierMetrics records verification outcomes on m.
func WithVerifierMetrics(m *Metrics) VerifierOption {
	return func(v *TokenVerifier) { v.metrics = m }
}

// NewTokenVerifier creates a verifier resolving keys through keys.
func NewTokenVerifier(keys KeyResolver, opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		keys:   keys,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks token and returns the identity named by its sub claim.
//
// The token's structure is checked before any key is resolved, so garbage
// input never causes a key set fetch. Every failure is a *sserr.Error whose
// code identifies the kind:
//
//   - [sserr.CodeMalformedToken]: not a JWS, or an algorithm outside the
//     asymmetric set
//   - [sserr.CodeUnknownSigningKey]: no kid, or kid not published even after
//     a refresh
//   - [sserr.CodeBadSignature]: signature does not verify with the key
//   - [sserr.CodeAuthenticationExpired]: exp is not after now, whether or
//     not the signature verifies
//   - [sserr.CodeTokenNotYetValid]: iat or nbf is after now
//   - [sserr.CodeMissingSubject]: sub absent or empty
func (v *TokenVerifier) Verify(ctx context.Context, token string) (_ Identity, err error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.Verify")
	defer func() {
		v.metrics.observeVerification(err)
		finishSpan(span, err)
		span.End()
	}()

	if token == "" {
		return nil, sserr.New(sserr.CodeMalformedToken, "token is empty")
	}
	if len(token) > maxTokenSize {
		return nil, sserr.Newf(sserr.CodeMalformedToken, "token exceeds %d bytes", maxTokenSize)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(asymmetricMethods),
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)

	// Structure and header first; nothing here is trusted yet.
	unverifiedClaims := &jwt.RegisteredClaims{}
	unverified, _, err := parser.ParseUnverified(token, unverifiedClaims)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeMalformedToken, "token is not a well-formed JWS")
	}
	alg := unverified.Method.Alg()
	if !slices.Contains(asymmetricMethods, alg) {
		return nil, sserr.Newf(sserr.CodeMalformedToken, "signing algorithm %q is not accepted", alg)
	}
	kid, _ := unverified.Header["kid"].(string)
	span.SetAttributes(
		attribute.String("auth.alg", alg),
		attribute.String("auth.kid", kid),
	)
	if kid == "" {
		return nil, sserr.New(sserr.CodeUnknownSigningKey, "token header has no kid")
	}

	key, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		if _, ok := sserr.AsError(err); ok {
			return nil, err
		}
		return nil, sserr.Wrapf(err, sserr.CodeUnknownSigningKey, "signing key %q unavailable", kid)
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		// An expired token is reported as expired whatever its signature.
		// Nothing from the unverified claims reaches the identity.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) && v.expired(unverifiedClaims) {
			return nil, sserr.Wrap(err, sserr.CodeAuthenticationExpired, "token has expired")
		}
		return nil, classifyError(err)
	}

	if claims.Subject == "" {
		return nil, sserr.New(sserr.CodeMissingSubject, "token has no subject")
	}

	span.SetStatus(codes.Ok, "")
	return NewBasicIdentity(claims.Subject), nil
}

// expired reports whether claims carry an exp that is not after now,
// using the same leeway as the parser.
func (v *TokenVerifier) expired(claims *jwt.RegisteredClaims) bool {
	if claims.ExpiresAt == nil {
		return false
	}
	return !v.now().Before(claims.ExpiresAt.Add(v.leeway))
}

// classifyError maps a golang-jwt error to a coded error. Expiry is checked
// first so an expired token is reported as expired even when other claims
// are also out of range.
func classifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "token has expired")
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		return sserr.Wrap(err, sserr.CodeTokenNotYetValid, "token is not valid yet")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeBadSignature, "token signature is invalid")
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeMalformedToken, "token is not a well-formed JWS")
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return sserr.Wrap(err, sserr.CodeMalformedToken, "token claims are invalid")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token validation failed")
	}
}

// startSpan creates a new OpenTelemetry span with the given name.
func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records err on the span and marks it failed. A nil err leaves
// the span untouched.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
