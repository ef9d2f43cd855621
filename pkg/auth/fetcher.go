package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

const (
	// WellKnownDiscoveryPath is appended to an issuer URL to locate its
	// OpenID discovery document.
	WellKnownDiscoveryPath = "/.well-known/openid-configuration"

	// DefaultFetchTimeout bounds one complete fetch (discovery plus key set).
	DefaultFetchTimeout = 5 * time.Second

	// maxDocumentSize caps discovery and key set response bodies.
	maxDocumentSize = 1 << 20
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// HTTPClient abstracts the HTTP client used for fetching discovery and key
// set documents. The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SigningKeyEntry is one entry of a published key set. X5C holds the
// certificate chain, leaf first, each element standard base64 DER.
type SigningKeyEntry struct {
	KID string   `json:"kid"`
	X5C []string `json:"x5c"`
}

// KeySetFetcher retrieves the current list of signing key entries from the
// identity provider. Implementations must honor ctx cancellation.
type KeySetFetcher interface {
	Fetch(ctx context.Context) ([]SigningKeyEntry, error)
}

// KeySetFetcherFunc adapts a function to [KeySetFetcher].
type KeySetFetcherFunc func(ctx context.Context) ([]SigningKeyEntry, error)

// Fetch implements [KeySetFetcher].
func (f KeySetFetcherFunc) Fetch(ctx context.Context) ([]SigningKeyEntry, error) {
	return f(ctx)
}

// ---------------------------------------------------------------------------
// RemoteKeySetFetcher
// ---------------------------------------------------------------------------

// DiscoveryURL returns the discovery document URL for issuer.
func DiscoveryURL(issuer string) string {
	return strings.TrimRight(issuer, "/") + WellKnownDiscoveryPath
}

// RemoteKeySetFetcher fetches signing keys over HTTP in two hops: the
// discovery document names the key set URL in jwks_uri, and the key set
// document lists the entries.
//
// RemoteKeySetFetcher is safe for concurrent use. It does not retry; the
// caller decides when to fetch again.
type RemoteKeySetFetcher struct {
	discoveryURL string
	client       HTTPClient
	timeout      time.Duration
	tracer       trace.Tracer
}

// FetcherOption configures a [RemoteKeySetFetcher].
type FetcherOption func(*RemoteKeySetFetcher)

// WithHTTPClient sets the HTTP client. The fetch timeout still applies
// through the request context.
func WithHTTPClient(client HTTPClient) FetcherOption {
	return func(f *RemoteKeySetFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithFetchTimeout bounds each call to Fetch. Non-positive values keep
// [DefaultFetchTimeout].
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *RemoteKeySetFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewRemoteKeySetFetcher creates a fetcher that starts from discoveryURL.
// Use [DiscoveryURL] to derive it from an issuer.
func NewRemoteKeySetFetcher(discoveryURL string, opts ...FetcherOption) *RemoteKeySetFetcher {
	f := &RemoteKeySetFetcher{
		discoveryURL: discoveryURL,
		timeout:      DefaultFetchTimeout,
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	return f
}

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

type keySetDocument struct {
	Keys []SigningKeyEntry `json:"keys"`
}

// Fetch implements [KeySetFetcher]. Every failure, including a discovery
// document without jwks_uri, returns an error with code
// [sserr.CodeUnavailableKeyProvider].
func (f *RemoteKeySetFetcher) Fetch(ctx context.Context) (_ []SigningKeyEntry, err error) {
	ctx, span := startSpan(ctx, f.tracer, "auth.FetchKeySet")
	defer func() {
		finishSpan(span, err)
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var discovery discoveryDocument
	if err := f.getJSON(ctx, f.discoveryURL, "discovery", &discovery); err != nil {
		return nil, err
	}
	if discovery.JWKSURI == "" {
		return nil, sserr.New(sserr.CodeUnavailableKeyProvider,
			"discovery document missing jwks_uri").
			WithDetail("url", f.discoveryURL)
	}

	var keySet keySetDocument
	if err := f.getJSON(ctx, discovery.JWKSURI, "key set", &keySet); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("auth.jwks_uri", discovery.JWKSURI),
		attribute.Int("auth.keys", len(keySet.Keys)),
	)
	return keySet.Keys, nil
}

// getJSON GETs url and decodes the JSON body into v.
func (f *RemoteKeySetFetcher) getJSON(ctx context.Context, url, what string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailableKeyProvider,
			"failed to create %s request", what)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailableKeyProvider,
			"%s request failed", what).WithDetail("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return sserr.Newf(sserr.CodeUnavailableKeyProvider,
			"%s endpoint returned status %d", what, resp.StatusCode).
			WithDetail("url", url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailableKeyProvider,
			"failed to read %s response", what)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailableKeyProvider,
			"failed to parse %s JSON", what).WithDetail("url", url)
	}
	return nil
}
