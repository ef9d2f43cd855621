package auth

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// Config is the authentication configuration. Load it with the config
// package using the "AUTH" prefix:
//
//	var cfg auth.Config
//	err := config.New().WithEnvPrefix("AUTH").WithFile("auth.yaml").Load(&cfg)
type Config struct {
	// IssuerURL is the identity provider's issuer. The discovery document
	// is looked up under it unless DiscoveryURL is set.
	IssuerURL string `env:"ISSUER_URL" yaml:"issuer_url" json:"issuer_url" required:"true"`

	// DiscoveryURL overrides the discovery document location.
	DiscoveryURL string `env:"DISCOVERY_URL" yaml:"discovery_url" json:"discovery_url"`

	// FetchTimeout bounds each key set fetch.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s" yaml:"fetch_timeout" json:"fetch_timeout"`

	// ClockSkew is tolerated when checking exp and iat.
	ClockSkew time.Duration `env:"CLOCK_SKEW" yaml:"clock_skew" json:"clock_skew"`

	// AllowFakeTokens overrides the environment's fake-token default when set.
	AllowFakeTokens *bool `env:"ALLOW_FAKE_TOKENS" yaml:"allow_fake_tokens" json:"allow_fake_tokens"`

	// Environment names the deployment tier. When empty it is derived from
	// ServerName.
	Environment string `env:"ENVIRONMENT" yaml:"environment" json:"environment"`

	// ServerName is the host name used to derive the environment. Defaults
	// to the OS host name.
	ServerName string `env:"SERVER_NAME" yaml:"server_name" json:"server_name"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.FetchTimeout < 0 {
		return sserr.Newf(sserr.CodeValidation, "fetch_timeout must not be negative, got %s", c.FetchTimeout)
	}
	if c.ClockSkew < 0 {
		return sserr.Newf(sserr.CodeValidation, "clock_skew must not be negative, got %s", c.ClockSkew)
	}
	if c.Environment != "" {
		if _, err := ParseEnvironment(c.Environment); err != nil {
			return err
		}
	}
	return nil
}

// DiscoveryEndpoint returns DiscoveryURL, or the well-known location under
// IssuerURL when it is empty.
func (c *Config) DiscoveryEndpoint() string {
	if c.DiscoveryURL != "" {
		return c.DiscoveryURL
	}
	return DiscoveryURL(c.IssuerURL)
}

// ResolveEnvironment returns the configured environment, falling back to
// classifying ServerName, then the OS host name.
func (c *Config) ResolveEnvironment() (Environment, error) {
	if c.Environment != "" {
		return ParseEnvironment(c.Environment)
	}
	name := c.ServerName
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			return EnvironmentProduction, sserr.Wrap(err, sserr.CodeInternalConfiguration,
				"cannot determine server name")
		}
		name = host
	}
	return EnvironmentFromServerName(name), nil
}

// Authenticator bundles the components built from a [Config].
type Authenticator struct {
	Cache    *KeySetCache
	Verifier *TokenVerifier
	Filter   *Filter
	Policy   FakeTokenPolicy
	Metrics  *Metrics
}

// Options holds the collaborators [New] cannot derive from a [Config].
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registerer receives the auth metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	// HTTPClient fetches key set documents. Defaults to a client with the
	// configured timeout.
	HTTPClient HTTPClient

	// Unauthenticated answers rejected requests. Defaults to
	// WriteUnauthenticated.
	Unauthenticated UnauthenticatedHandler
}

// New builds the fetcher, cache, verifier, policy and filter described by
// cfg. The environment is resolved here, once.
func New(cfg Config, opts Options) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IssuerURL == "" && cfg.DiscoveryURL == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "issuer_url is required")
	}
	env, err := cfg.ResolveEnvironment()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *Metrics
	if opts.Registerer != nil {
		if metrics, err = NewMetrics(opts.Registerer); err != nil {
			return nil, err
		}
	}

	fetcher := NewRemoteKeySetFetcher(cfg.DiscoveryEndpoint(),
		WithHTTPClient(opts.HTTPClient),
		WithFetchTimeout(cfg.FetchTimeout),
	)
	cache := NewKeySetCache(fetcher,
		WithCacheLogger(logger),
		WithCacheMetrics(metrics),
	)
	verifier := NewTokenVerifier(cache,
		WithClockSkew(cfg.ClockSkew),
		WithVerifierMetrics(metrics),
	)
	policy := NewFakeTokenPolicy(cfg.AllowFakeTokens, env)
	filter := NewFilter(verifier,
		WithFakeTokenPolicy(policy),
		WithUnauthenticatedHandler(opts.Unauthenticated),
		WithFilterLogger(logger),
		WithFilterMetrics(metrics),
	)

	if policy.Allow() {
		logger.Warn("auth: fake tokens are accepted", "environment", env.String())
	}

	return &Authenticator{
		Cache:    cache,
		Verifier: verifier,
		Filter:   filter,
		Policy:   policy,
		Metrics:  metrics,
	}, nil
}

// Prime warms the key set cache. See [KeySetCache.Prime].
func (a *Authenticator) Prime(ctx context.Context) error {
	return a.Cache.Prime(ctx)
}
