// Package metrics records auth and HTTP telemetry. Init(false) returns a
// Noop recorder so callers never branch on whether metrics are enabled.
package metrics

import "time"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder is implemented by the Prometheus-backed Metrics and by Noop.
type Recorder interface {
	RecordTokenIssued(kind string, grant string)
	RecordTokenValidation(kind string, result string, duration time.Duration)
	RecordTokenRevoked(reason string)
	RecordLogin(success bool, duration time.Duration)
	RecordSignup(success bool)
	RecordTokenRefresh(success bool)
	RecordResetRequested(known bool)
	RecordResetRedeemed(result string)
	RecordHTTPRequest(method string, route string, status int, duration time.Duration)
	RecordHTTPInFlight(delta int)
}
