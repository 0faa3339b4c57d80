package middleware

import (
	"context"
	"net/http"
	"strings"

	"go-telemed/internal/model"
	"go-telemed/internal/token"
)

type authenticator interface {
	Authenticate(ctx context.Context, bearer string) (model.AuthUser, token.Claims, error)
}

type contextKey string

const principalContextKey contextKey = "auth_principal"

const bearerPrefix = "bearer "

type principal struct {
	user   model.AuthUser
	claims token.Claims
}

type AuthMiddleware struct {
	auth authenticator
}

func NewAuthMiddleware(auth authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAuth admits requests carrying a valid access token for an existing
// identity. All rejections share one response.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			writeUnauthorized(w)
			return
		}

		user, claims, err := m.auth.Authenticate(r.Context(), strings.TrimSpace(header[len(bearerPrefix):]))
		if err != nil {
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal{user: user, claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	roleSet := map[string]struct{}{}
	for _, role := range allowedRoles {
		roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}

			if _, exists := roleSet[strings.ToLower(user.Role)]; !exists {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func UserFromContext(ctx context.Context) (model.AuthUser, bool) {
	p, ok := ctx.Value(principalContextKey).(principal)
	return p.user, ok
}

func ClaimsFromContext(ctx context.Context) (token.Claims, bool) {
	p, ok := ctx.Value(principalContextKey).(principal)
	return p.claims, ok
}

// WithPrincipal attaches an authenticated identity to ctx, as RequireAuth does.
func WithPrincipal(ctx context.Context, user model.AuthUser, claims token.Claims) context.Context {
	return context.WithValue(ctx, principalContextKey, principal{user: user, claims: claims})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", model.ErrTokenInvalid.Error())
}
