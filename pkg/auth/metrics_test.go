package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/bookings-auth/internal/testutil"
	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

func TestNewMetrics_NilRegisterer(t *testing.T) {
	t.Parallel()

	_, err := NewMetrics(nil)
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

func TestNewMetrics_SharedRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err, "second registration reuses collectors")

	first.observeVerification(nil)
	second.observeVerification(nil)

	assert.InDelta(t, 2, promtestutil.ToFloat64(first.verifications.WithLabelValues(resultVerified)), 0)
}

func TestNewMetrics_ConflictingCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auth_requests_total",
		Help: "Something else.",
	}))

	_, err := NewMetrics(reg)
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeRequest(resultAnonymous)
		m.observeVerification(errors.New("x"))
		m.observeRefresh(nil, 3, time.Millisecond)
	})
}

func TestVerificationResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: sserr.New(sserr.CodeMalformedToken, "x"), want: "malformed_token"},
		{err: sserr.New(sserr.CodeBadSignature, "x"), want: "bad_signature"},
		{err: sserr.New(sserr.CodeAuthenticationExpired, "x"), want: "token_expired"},
		{err: sserr.New(sserr.CodeTokenNotYetValid, "x"), want: "token_not_yet_valid"},
		{err: sserr.New(sserr.CodeMissingSubject, "x"), want: "missing_subject"},
		{err: sserr.New(sserr.CodeUnknownSigningKey, "x"), want: "unknown_signing_key"},
		{err: errors.New("plain"), want: "invalid"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, verificationResult(tt.err))
	}
}
