// Package idp provides an in-process identity provider for tests. It mints
// signing keys wrapped in self-signed certificates, serves an OpenID
// discovery document and a JWKS document over httptest, and signs tokens
// with the published keys.
package idp

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	// DiscoveryPath is the well-known path the provider serves its
	// discovery document on.
	DiscoveryPath = "/.well-known/openid-configuration"

	// JWKSPath is the path of the key set document.
	JWKSPath = "/jwks"
)

// Key is a signing key published by the provider.
type Key struct {
	KID     string
	Signer  crypto.Signer
	Method  jwt.SigningMethod
	CertDER []byte
}

// NewRSAKey generates a 2048-bit RSA key and a self-signed certificate for it.
func NewRSAKey(t testing.TB, kid string) *Key {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "generating RSA key")
	return newKey(t, kid, priv, jwt.SigningMethodRS256)
}

// NewECKey generates a P-256 key and a self-signed certificate for it.
func NewECKey(t testing.TB, kid string) *Key {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "generating EC key")
	return newKey(t, kid, priv, jwt.SigningMethodES256)
}

func newKey(t testing.TB, kid string, signer crypto.Signer, method jwt.SigningMethod) *Key {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "idp signing " + kid},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, signer.Public(), signer)
	require.NoError(t, err, "creating certificate")
	return &Key{KID: kid, Signer: signer, Method: method, CertDER: der}
}

// Certificate returns the standard base64 encoding of the key's DER
// certificate, as it appears in an x5c array.
func (k *Key) Certificate() string {
	return base64.StdEncoding.EncodeToString(k.CertDER)
}

// Public returns the key's public half.
func (k *Key) Public() crypto.PublicKey {
	return k.Signer.Public()
}

// Sign signs claims with the key and sets the kid header.
func (k *Key) Sign(t testing.TB, claims jwt.Claims) string {
	t.Helper()
	return k.SignWithHeader(t, claims, map[string]any{"kid": k.KID})
}

// SignWithHeader signs claims with the key, replacing the token header
// fields with header. The alg field is always set from the key's method.
func (k *Key) SignWithHeader(t testing.TB, claims jwt.Claims, header map[string]any) string {
	t.Helper()
	token := jwt.NewWithClaims(k.Method, claims)
	delete(token.Header, "kid")
	for name, value := range header {
		token.Header[name] = value
	}
	signed, err := token.SignedString(k.Signer)
	require.NoError(t, err, "signing token")
	return signed
}

// Claims returns claims for subject issued at now and expiring an hour later.
func Claims(subject string, now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// Entry is a raw JWKS entry. It lets tests publish entries that do not
// correspond to a real key, such as a corrupt certificate.
type Entry struct {
	KID string   `json:"kid"`
	KTY string   `json:"kty,omitempty"`
	Use string   `json:"use,omitempty"`
	X5C []string `json:"x5c,omitempty"`
}

// Provider is a running fake identity provider.
type Provider struct {
	server *httptest.Server

	mu      sync.Mutex
	entries []Entry

	discoveryFetches atomic.Int64
	jwksFetches      atomic.Int64
	unavailable      atomic.Bool
	omitJWKSURI      atomic.Bool
	jwksGate         chan struct{}
}

// New starts a provider publishing keys. The server is closed when the test
// finishes.
func New(t testing.TB, keys ...*Key) *Provider {
	t.Helper()
	p := &Provider{}
	p.Publish(keys...)

	mux := http.NewServeMux()
	mux.HandleFunc(DiscoveryPath, p.serveDiscovery)
	mux.HandleFunc(JWKSPath, p.serveJWKS)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

// Issuer returns the provider's issuer URL.
func (p *Provider) Issuer() string { return p.server.URL }

// DiscoveryURL returns the URL of the discovery document.
func (p *Provider) DiscoveryURL() string { return p.server.URL + DiscoveryPath }

// Client returns an HTTP client that talks to the provider.
func (p *Provider) Client() *http.Client { return p.server.Client() }

// Publish replaces the published key set with keys. Calling it again
// simulates a key rotation.
func (p *Provider) Publish(keys ...*Key) {
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		kty := "RSA"
		if _, ok := k.Signer.(*ecdsa.PrivateKey); ok {
			kty = "EC"
		}
		entries = append(entries, Entry{KID: k.KID, KTY: kty, Use: "sig", X5C: []string{k.Certificate()}})
	}
	p.PublishEntries(entries...)
}

// PublishEntries replaces the published key set with raw entries.
func (p *Provider) PublishEntries(entries ...Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append([]Entry(nil), entries...)
}

// SetUnavailable makes both endpoints answer 503 while down is true.
func (p *Provider) SetUnavailable(down bool) { p.unavailable.Store(down) }

// OmitJWKSURI makes the discovery document leave out jwks_uri.
func (p *Provider) OmitJWKSURI(omit bool) { p.omitJWKSURI.Store(omit) }

// HoldJWKS blocks JWKS responses until the returned function is called.
// It must be called before any concurrent fetch starts.
func (p *Provider) HoldJWKS() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.jwksGate = gate
	p.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// JWKSFetches returns how many times the key set document was served.
func (p *Provider) JWKSFetches() int { return int(p.jwksFetches.Load()) }

// DiscoveryFetches returns how many times the discovery document was served.
func (p *Provider) DiscoveryFetches() int { return int(p.discoveryFetches.Load()) }

func (p *Provider) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	p.discoveryFetches.Add(1)
	if p.unavailable.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	doc := map[string]any{"issuer": p.server.URL}
	if !p.omitJWKSURI.Load() {
		doc["jwks_uri"] = p.server.URL + JWKSPath
	}
	writeJSON(w, doc)
}

func (p *Provider) serveJWKS(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	gate := p.jwksGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	p.jwksFetches.Add(1)
	if p.unavailable.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	p.mu.Lock()
	entries := p.entries
	p.mu.Unlock()
	writeJSON(w, map[string]any{"keys": entries})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
