package auth

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	sserr "github.com/StricklySoft/bookings-auth/pkg/errors"
)

// Verification result labels.
const (
	resultVerified   = "verified"
	resultFake       = "fake"
	resultAnonymous  = "anonymous"
	refreshSucceeded = "success"
	refreshFailed    = "failure"
)

// Metrics records authentication outcomes as Prometheus collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	keys            prometheus.Gauge
}

// NewMetrics creates the auth collectors and registers them with reg.
// Collectors already registered by an earlier call are reused, so several
// components may share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "metrics registerer is nil")
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_requests_total",
			Help: "Requests seen by the authentication filter by outcome.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_verifications_total",
			Help: "Bearer token verifications by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_keyset_refreshes_total",
			Help: "Signing key set refreshes by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auth_keyset_refresh_duration_seconds",
			Help:    "Duration of signing key set refreshes.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auth_keyset_keys",
			Help: "Signing keys in the current key set generation.",
		}),
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.verifications, err = register(reg, m.verifications); err != nil {
		return nil, err
	}
	if m.refreshes, err = register(reg, m.refreshes); err != nil {
		return nil, err
	}
	if m.refreshDuration, err = register(reg, m.refreshDuration); err != nil {
		return nil, err
	}
	if m.keys, err = register(reg, m.keys); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, sserr.Wrap(err, sserr.CodeInternalConfiguration, "failed to register auth metrics")
	}
	return c, nil
}

func (m *Metrics) observeRequest(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

// observeVerification counts a verification. Failures are labelled with
// their error code.
func (m *Metrics) observeVerification(err error) {
	if m == nil {
		return
	}
	result := resultVerified
	if err != nil {
		result = verificationResult(err)
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRefresh(err error, keys int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.refreshes.WithLabelValues(refreshFailed).Inc()
		return
	}
	m.refreshes.WithLabelValues(refreshSucceeded).Inc()
	m.keys.Set(float64(keys))
}

// verificationResult maps a verification error to a bounded label value.
func verificationResult(err error) string {
	switch sserr.GetCode(err) {
	case sserr.CodeMalformedToken:
		return "malformed_token"
	case sserr.CodeBadSignature:
		return "bad_signature"
	case sserr.CodeAuthenticationExpired:
		return "token_expired"
	case sserr.CodeTokenNotYetValid:
		return "token_not_yet_valid"
	case sserr.CodeMissingSubject:
		return "missing_subject"
	case sserr.CodeUnknownSigningKey:
		return "unknown_signing_key"
	default:
		return "invalid"
	}
}
