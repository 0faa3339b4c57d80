package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go-telemed/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

// Timeout bounds handler run time. Handlers see a cancelled context once the
// deadline passes, which aborts in-flight database work.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	message, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(message))
	}
}
