package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"go-telemed/internal/metrics"
)

// Metrics records request counts and latency labelled by route pattern, not
// raw path, to keep label cardinality bounded.
func Metrics(recorder metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if _, ok := recorder.(*metrics.Noop); ok || recorder == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			started := time.Now()
			recorder.RecordHTTPInFlight(1)
			defer recorder.RecordHTTPInFlight(-1)

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			recorder.RecordHTTPRequest(r.Method, route, wrapped.status, time.Since(started))
		})
	}
}
