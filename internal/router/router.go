package router

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-telemed/internal/config"
	"go-telemed/internal/handler"
	"go-telemed/internal/metrics"
	"go-telemed/internal/middleware"
	"go-telemed/internal/model"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	Users  *handler.UserHandler
	Audit  *handler.AuditHandler
	Health *handler.HealthHandler
}

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	recorder metrics.Recorder,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)
	requireAuth := authMiddleware.RequireAuth
	adminOnly := authMiddleware.RequireRoles(model.RoleAdmin)

	r.Use(middleware.Recovery)
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(recorder))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Health)
	if cfg.MetricsEnabled {
		r.With(metricsAuth(cfg.MetricsToken)).Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/signup", h.Auth.Signup)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/forgot-password", h.Auth.ForgotPassword)
			auth.Post("/reset-password", h.Auth.ResetPassword)
			auth.With(requireAuth).Post("/logout", h.Auth.Logout)
			auth.With(requireAuth).Get("/me", h.Auth.Me)
		})

		api.With(requireAuth, adminOnly).Get("/users", h.Users.List)
		api.With(requireAuth, adminOnly).Get("/users/{id}", h.Users.Get)
		api.With(requireAuth, adminOnly).Get("/audit", h.Audit.List)
	})

	return r
}

// metricsAuth guards the scrape endpoint with a static bearer token when one
// is configured.
func metricsAuth(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="metrics"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
