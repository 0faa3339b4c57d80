package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	m, ok := Init(true).(*Metrics)
	require.True(t, ok, "Init(true) should return *Metrics")
	assert.Same(t, m, Init(true), "collectors are registered once")

	_, ok = Init(false).(*Noop)
	assert.True(t, ok, "Init(false) should return *Noop")
}

func TestMetrics_Record(t *testing.T) {
	m := Init(true).(*Metrics)

	before := testutil.ToFloat64(m.AuthLoginTotal.WithLabelValues(ResultFailure))
	m.RecordLogin(false, 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(m.AuthLoginTotal.WithLabelValues(ResultFailure)))

	before = testutil.ToFloat64(m.TokenValidationTotal.WithLabelValues("access", "expired"))
	m.RecordTokenValidation("access", "expired", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(m.TokenValidationTotal.WithLabelValues("access", "expired")))

	before = testutil.ToFloat64(m.PasswordResetRequestedTotal.WithLabelValues("unknown"))
	m.RecordResetRequested(false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.PasswordResetRequestedTotal.WithLabelValues("unknown")))

	before = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unknown", "404"))
	m.RecordHTTPRequest("GET", "", 404, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unknown", "404")))

	m.RecordHTTPInFlight(1)
	m.RecordHTTPInFlight(-1)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestNoop(t *testing.T) {
	n := NewNoop()
	assert.NotPanics(t, func() {
		n.RecordTokenIssued("access", "login")
		n.RecordTokenValidation("access", "valid", time.Millisecond)
		n.RecordTokenRevoked("logout")
		n.RecordLogin(true, time.Millisecond)
		n.RecordSignup(true)
		n.RecordTokenRefresh(true)
		n.RecordResetRequested(true)
		n.RecordResetRedeemed("success")
		n.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
		n.RecordHTTPInFlight(1)
	})
}
