package auth

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/bookings-auth/internal/testutil"
	"github.com/StricklySoft/bookings-auth/internal/testutil/idp"
	"github.com/StricklySoft/bookings-auth/pkg/config"
	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

func TestConfig_LoadFromEnv(t *testing.T) {
	testutil.SetEnv(t, "AUTHCFG_ISSUER_URL", "https://id.bookings.example")
	testutil.SetEnv(t, "AUTHCFG_ALLOW_FAKE_TOKENS", "false")
	testutil.SetEnv(t, "AUTHCFG_ENVIRONMENT", "local")
	testutil.UnsetEnv(t, "AUTHCFG_FETCH_TIMEOUT")
	testutil.UnsetEnv(t, "AUTHCFG_DISCOVERY_URL")

	var cfg Config
	require.NoError(t, config.New().WithEnvPrefix("AUTHCFG").Load(&cfg))

	assert.Equal(t, "https://id.bookings.example", cfg.IssuerURL)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	require.NotNil(t, cfg.AllowFakeTokens)
	assert.False(t, *cfg.AllowFakeTokens)
	assert.Equal(t, "https://id.bookings.example/.well-known/openid-configuration", cfg.DiscoveryEndpoint())

	env, err := cfg.ResolveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, EnvironmentLocal, env)
	assert.False(t, NewFakeTokenPolicy(cfg.AllowFakeTokens, env).Allow(), "explicit false wins over local")
}

func TestConfig_LoadFromFile(t *testing.T) {
	testutil.UnsetEnv(t, "AUTHFILE_ALLOW_FAKE_TOKENS")
	testutil.UnsetEnv(t, "AUTHFILE_ISSUER_URL")

	path := testutil.TempConfigFile(t, `
issuer_url: https://id.bookings.example/
discovery_url: https://id.bookings.example/custom/discovery
fetch_timeout: 2s
clock_skew: 30s
server_name: api.integration.bookings.example
`, ".yaml")

	var cfg Config
	require.NoError(t, config.New().WithEnvPrefix("AUTHFILE").WithFile(path).Load(&cfg))

	assert.Equal(t, 2*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.ClockSkew)
	assert.Nil(t, cfg.AllowFakeTokens, "unset flag stays nil")
	assert.Equal(t, "https://id.bookings.example/custom/discovery", cfg.DiscoveryEndpoint())

	env, err := cfg.ResolveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, EnvironmentIntegration, env)
	assert.True(t, NewFakeTokenPolicy(cfg.AllowFakeTokens, env).Allow())
}

func TestConfig_IssuerRequired(t *testing.T) {
	testutil.UnsetEnv(t, "AUTHREQ_ISSUER_URL")

	var cfg Config
	err := config.New().WithEnvPrefix("AUTHREQ").Load(&cfg)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want sserr.Code
	}{
		{name: "negative timeout", cfg: Config{IssuerURL: "https://id", FetchTimeout: -time.Second}, want: sserr.CodeValidation},
		{name: "negative skew", cfg: Config{IssuerURL: "https://id", ClockSkew: -time.Second}, want: sserr.CodeValidation},
		{name: "unknown environment", cfg: Config{IssuerURL: "https://id", Environment: "staging"}, want: sserr.CodeValidationFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			testutil.RequireErrorCode(t, tt.cfg.Validate(), tt.want)
		})
	}

	valid := Config{IssuerURL: "https://id", FetchTimeout: time.Second, Environment: "production"}
	require.NoError(t, valid.Validate())
}

func TestConfig_ResolveEnvironmentFromServerName(t *testing.T) {
	t.Parallel()

	cfg := Config{ServerName: "localhost"}
	env, err := cfg.ResolveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, EnvironmentLocal, env)

	cfg = Config{ServerName: "api.bookings.example"}
	env, err = cfg.ResolveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, EnvironmentProduction, env)
}

func TestNew_BuildsWorkingAuthenticator(t *testing.T) {
	t.Parallel()

	key := idp.NewECKey(t, "ec-1")
	provider := idp.New(t, key)

	a, err := New(Config{
		IssuerURL:    provider.Issuer(),
		FetchTimeout: time.Second,
		Environment:  "production",
	}, Options{
		Logger:     discardLogger(),
		Registerer: prometheus.NewPedanticRegistry(),
		HTTPClient: provider.Client(),
	})
	require.NoError(t, err)
	require.NotNil(t, a.Metrics)
	assert.False(t, a.Policy.Allow())

	require.NoError(t, a.Prime(context.Background()))
	assert.Equal(t, []string{"ec-1"}, a.Cache.KeyIDs())

	identity, err := a.Verifier.Verify(context.Background(), key.Sign(t, idp.Claims("guest-7", time.Now())))
	require.NoError(t, err)
	assert.Equal(t, "guest-7", identity.Subject())
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Options{})
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	_, err = New(Config{IssuerURL: "https://id", Environment: "staging"}, Options{})
	testutil.RequireErrorCode(t, err, sserr.CodeValidationFormat)
}

func TestNew_FakeTokensOutsideProduction(t *testing.T) {
	t.Parallel()

	a, err := New(Config{IssuerURL: "https://id.invalid", Environment: "local"}, Options{Logger: discardLogger()})
	require.NoError(t, err)
	assert.True(t, a.Policy.Allow())
	assert.Nil(t, a.Metrics)

	identity, err := a.Filter.Authenticate(context.Background(), "Bearer fake:guest-7")
	require.NoError(t, err)
	assert.Equal(t, "guest-7", identity.Subject())
}
