package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ Recorder = (*Metrics)(nil)

type Metrics struct {
	TokensIssuedTotal       *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokenValidationDuration *prometheus.HistogramVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec

	AuthLoginTotal    *prometheus.CounterVec
	AuthLoginDuration prometheus.Histogram
	AuthSignupTotal   *prometheus.CounterVec

	PasswordResetRequestedTotal *prometheus.CounterVec
	PasswordResetRedeemedTotal  *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns the process-wide Prometheus recorder, registering collectors
// on first use, or a Noop recorder when disabled.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoop()
	}

	once.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"kind", "grant"}, // kind: access, refresh; grant: login, signup, refresh
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_token_validation_total",
				Help: "Total number of token validations by outcome",
			},
			[]string{"kind", "result"},
		),
		TokenValidationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_token_validation_duration_seconds",
				Help:    "Time spent validating tokens",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"kind"},
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_tokens_revoked_total",
				Help: "Total number of tokens added to the deny-list",
			},
			[]string{"reason"},
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_tokens_refreshed_total",
				Help: "Total number of refresh attempts",
			},
			[]string{"result"},
		),
		AuthLoginTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_total",
				Help: "Total number of login attempts",
			},
			[]string{"result"},
		),
		AuthLoginDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "auth_login_duration_seconds",
				Help:    "Time spent handling login attempts, dominated by password hashing",
				Buckets: prometheus.DefBuckets,
			},
		),
		AuthSignupTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_signup_total",
				Help: "Total number of signup attempts",
			},
			[]string{"result"},
		),
		PasswordResetRequestedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_password_reset_requested_total",
				Help: "Total number of password reset requests",
			},
			[]string{"account"}, // known, unknown
		),
		PasswordResetRedeemedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_password_reset_redeemed_total",
				Help: "Total number of password reset redemptions",
			},
			[]string{"result"}, // success, invalid, expired, error
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}

func (m *Metrics) RecordTokenIssued(kind string, grant string) {
	m.TokensIssuedTotal.WithLabelValues(kind, grant).Inc()
}

func (m *Metrics) RecordTokenValidation(kind string, result string, duration time.Duration) {
	m.TokenValidationTotal.WithLabelValues(kind, result).Inc()
	m.TokenValidationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordTokenRevoked(reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordLogin(success bool, duration time.Duration) {
	m.AuthLoginTotal.WithLabelValues(result(success)).Inc()
	m.AuthLoginDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordSignup(success bool) {
	m.AuthSignupTotal.WithLabelValues(result(success)).Inc()
}

func (m *Metrics) RecordTokenRefresh(success bool) {
	m.TokensRefreshedTotal.WithLabelValues(result(success)).Inc()
}

func (m *Metrics) RecordResetRequested(known bool) {
	account := "unknown"
	if known {
		account = "known"
	}
	m.PasswordResetRequestedTotal.WithLabelValues(account).Inc()
}

func (m *Metrics) RecordResetRedeemed(result string) {
	m.PasswordResetRedeemedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordHTTPRequest(method string, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordHTTPInFlight(delta int) {
	m.HTTPRequestsInFlight.Add(float64(delta))
}

func result(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}
