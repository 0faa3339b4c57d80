package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-telemed/internal/config"
	"go-telemed/internal/database"
	"go-telemed/internal/event"
	"go-telemed/internal/handler"
	"go-telemed/internal/metrics"
	"go-telemed/internal/middleware"
	"go-telemed/internal/model"
	"go-telemed/internal/password"
	"go-telemed/internal/repository"
	"go-telemed/internal/service"
	"go-telemed/internal/token"
)

const adminPassword = "admin-password"

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *service.AuthService) {
	t.Helper()

	ctx := context.Background()
	db, err := database.New(ctx, database.Options{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	codec, err := token.NewCodec([]byte("router-test-secret"), "HS256")
	require.NoError(t, err)

	users := repository.NewUserRepository(db.SQL, db.Dialect)
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	bus := event.NewBus()
	issuer := token.NewIssuer(codec, 30*time.Minute, 7*24*time.Hour, nil)
	verifier := token.NewVerifier(codec)
	recorder := metrics.NewNoop()

	auth := service.NewAuthService(users, hasher, issuer, verifier, bus, recorder)
	reset := service.NewResetService(users, hasher, time.Hour, "", bus, recorder)
	audit := service.NewAuditService(repository.NewAuditRepository(db.SQL, db.Dialect))
	require.NoError(t, auth.SeedAdmin(ctx, adminPassword))

	h := New(cfg, middleware.NewAuthMiddleware(auth), recorder, Handlers{
		Auth:   handler.NewAuthHandler(auth, reset),
		Users:  handler.NewUserHandler(auth),
		Audit:  handler.NewAuditHandler(audit),
		Health: handler.NewHealthHandler(db),
	})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return server, auth
}

func testConfig() *config.Config {
	return &config.Config{
		CORSOrigins:      []string{"http://localhost:5173"},
		RateLimitRPM:     0,
		AuthRateLimitRPM: 1000,
		RequestTimeout:   5 * time.Second,
		MetricsEnabled:   true,
		MetricsToken:     "scrape-token",
	}
}

func login(t *testing.T, auth *service.AuthService, username string, pass string) string {
	t.Helper()

	pair, err := auth.Login(context.Background(), username, pass, "127.0.0.1")
	require.NoError(t, err)
	return pair.AccessToken
}

func get(t *testing.T, url string, bearer string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, testConfig())

	resp := get(t, server.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRouter_ProtectedRoutesRequireBearer(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, testConfig())

	for _, path := range []string{"/api/v1/auth/me", "/api/v1/users", "/api/v1/audit"} {
		resp := get(t, server.URL+path, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"), path)

		resp = get(t, server.URL+path, "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestRouter_AdminRoutes(t *testing.T) {
	t.Parallel()

	server, auth := newTestServer(t, testConfig())
	_, err := auth.Signup(context.Background(), model.SignupRequest{
		Username: "patient1",
		Email:    "patient1@example.com",
		Password: "password123",
		Role:     model.RolePatient,
	}, "127.0.0.1")
	require.NoError(t, err)

	patientToken := login(t, auth, "patient1", "password123")
	adminToken := login(t, auth, "admin", adminPassword)

	resp := get(t, server.URL+"/api/v1/auth/me", patientToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, server.URL+"/api/v1/users", patientToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = get(t, server.URL+"/api/v1/users", adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Success bool               `json:"success"`
		Data    model.AuthUserList `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.True(t, parsed.Success)
	assert.Len(t, parsed.Data.Users, 2)

	resp = get(t, server.URL+"/api/v1/audit", adminToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_MetricsToken(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, testConfig())

	resp := get(t, server.URL+"/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = get(t, server.URL+"/metrics", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = get(t, server.URL+"/metrics", "scrape-token")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MetricsEnabled = false
	server, _ := newTestServer(t, cfg)

	resp := get(t, server.URL+"/metrics", "scrape-token")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_SignupThroughRouter(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t, testConfig())

	body, err := json.Marshal(map[string]string{
		"username": "doc",
		"email":    "doc@example.com",
		"password": "password123",
		"role":     "doctor",
	})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/api/v1/auth/signup", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRouter_AuthRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AuthRateLimitRPM = 2
	server, _ := newTestServer(t, cfg)

	var limited int
	for i := 0; i < 5; i++ {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/auth/login", bytes.NewReader([]byte(`{}`)))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 3, limited)
}
