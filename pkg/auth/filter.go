package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

const (
	// HeaderAuthorization is the header carrying the bearer token.
	HeaderAuthorization = "Authorization"

	// bearerPrefix is the scheme prefix of a bearer credential.
	bearerPrefix = "Bearer "
)

// ExtractBearerToken extracts the token from an Authorization header value.
// The scheme is matched case-insensitively. ok is false when the header is
// empty or uses another scheme; the token may be empty when ok is true.
func ExtractBearerToken(authHeader string) (token string, ok bool) {
	if len(authHeader) < len(bearerPrefix) {
		return "", false
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return authHeader[len(bearerPrefix):], true
}

// UnauthenticatedHandler answers a request whose credential was rejected.
// err is the verification error, normally a *sserr.Error.
type UnauthenticatedHandler func(w http.ResponseWriter, r *http.Request, err error)

// errorBody is the JSON body written for rejected requests.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteUnauthenticated is the default [UnauthenticatedHandler]. It writes a
// JSON body with the error code and a fixed message, using the status from
// the error's category. [TokenVerifier] errors are all 401; 503 only comes
// from UNAVAIL errors returned by a custom [Verifier]. Error details are
// not exposed to the client.
func WriteUnauthenticated(w http.ResponseWriter, _ *http.Request, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()
	message := "authentication failed"
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		message = "invalid bearer token"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: e.Code.String(), Message: message})
}

// Filter authenticates requests carrying a bearer token. It runs once per
// request and keeps no state between requests.
//
// A request without a bearer token passes through anonymously. A request
// whose token verifies gets its [Identity] in the context. A request whose
// token is rejected is answered by the [UnauthenticatedHandler] and never
// reaches the next handler.
type Filter struct {
	verifier Verifier
	fake     FakeTokenPolicy
	reject   UnauthenticatedHandler
	logger   *slog.Logger
	metrics  *Metrics
}

// FilterOption configures a [Filter].
type FilterOption func(*Filter)

// WithFakeTokenPolicy admits fake tokens when policy allows. Without this
// option fake tokens are verified like any other token and rejected.
func WithFakeTokenPolicy(policy FakeTokenPolicy) FilterOption {
	return func(f *Filter) { f.fake = policy }
}

// WithUnauthenticatedHandler sets the handler for rejected credentials.
// The default is [WriteUnauthenticated].
func WithUnauthenticatedHandler(h UnauthenticatedHandler) FilterOption {
	return func(f *Filter) {
		if h != nil {
			f.reject = h
		}
	}
}

// WithFilterLogger sets the logger. The default is [slog.Default].
func WithFilterLogger(logger *slog.Logger) FilterOption {
	return func(f *Filter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFilterMetrics counts request outcomes on m.
func WithFilterMetrics(m *Metrics) FilterOption {
	return func(f *Filter) { f.metrics = m }
}

// NewFilter creates a filter that verifies tokens with verifier.
func NewFilter(verifier Verifier, opts ...FilterOption) *Filter {
	f := &Filter{
		verifier: verifier,
		reject:   WriteUnauthenticated,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authenticate evaluates an Authorization header value. It returns a nil
// identity and nil error for an anonymous request, an identity for an
// accepted token, and an error for a rejected one.
func (f *Filter) Authenticate(ctx context.Context, authHeader string) (Identity, error) {
	token, ok := ExtractBearerToken(authHeader)
	if !ok {
		f.metrics.observeRequest(resultAnonymous)
		return nil, nil
	}

	identity, isFake, err := f.fake.Admit(token)
	if isFake {
		if err != nil {
			f.metrics.observeRequest(verificationResult(err))
			f.logger.WarnContext(ctx, "auth: rejected fake token", "error", err)
			return nil, err
		}
		f.metrics.observeRequest(resultFake)
		f.logger.DebugContext(ctx, "auth: accepted fake token",
			"subject", identity.Subject(),
			"environment", f.fake.Environment().String(),
		)
		return identity, nil
	}

	identity, err = f.verifier.Verify(ctx, token)
	if err != nil {
		f.metrics.observeRequest(verificationResult(err))
		f.logger.InfoContext(ctx, "auth: rejected bearer token",
			"code", sserr.GetCode(err).String(),
			"error", err,
		)
		return nil, err
	}
	f.metrics.observeRequest(resultVerified)
	return identity, nil
}

// Middleware wraps next with the filter.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.Handle("GET /bookings", auth.RequireIdentity(listBookings))
//	http.ListenAndServe(":8080", filter.Middleware(mux))
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := f.Authenticate(r.Context(), r.Header.Get(HeaderAuthorization))
		if err != nil {
			f.Reject(w, r, err)
			return
		}
		if identity != nil {
			r = r.WithContext(ContextWithIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

// Reject answers r with the configured [UnauthenticatedHandler]. Framework
// adapters call it so rejections look the same on every router.
func (f *Filter) Reject(w http.ResponseWriter, r *http.Request, err error) {
	f.reject(w, r, err)
}

// RequireIdentity answers 401 for anonymous requests and passes
// authenticated ones to next. Place it behind [Filter.Middleware] on
// endpoints that need a caller.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(errorBody{
				Code:    sserr.CodeAuthentication.String(),
				Message: "authentication required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
