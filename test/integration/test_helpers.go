//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-telemed/internal/app"
	"go-telemed/internal/config"
)

const adminPassword = "admin123"

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		AppEnv:                  config.EnvDevelopment,
		ServerPort:              "8080",
		ServerReadHeaderTimeout: 10 * time.Second,
		ServerWriteTimeout:      30 * time.Second,
		ServerIdleTimeout:       120 * time.Second,
		RequestTimeout:          30 * time.Second,
		DatabaseDriver:          config.DriverSQLite,
		DatabaseURL:             "file:" + filepath.Join(t.TempDir(), "telemed.db"),
		JWTSecret:               "test-secret",
		JWTAlgorithm:            "HS256",
		JWTAccessTTL:            15 * time.Minute,
		JWTRefreshTTL:           24 * time.Hour,
		ResetTokenTTL:           time.Hour,
		ResetLinkBase:           "http://localhost:5173/reset-password",
		CORSOrigins:             []string{"*"},
		RateLimitRPM:            1000,
		AuthRateLimitRPM:        1000,
		DenylistBackend:         config.DenylistMemory,
		CleanupInterval:         time.Hour,
		SeedAdminPassword:       adminPassword,
		BcryptCost:              4,
	}
}

func newServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	application, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(application.Close)

	server := httptest.NewServer(application.Handler())
	t.Cleanup(server.Close)
	return server
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func login(t *testing.T, server *httptest.Server, username string, pass string) tokenPair {
	t.Helper()

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/login", map[string]string{
		"username": username,
		"password": pass,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pair tokenPair
	decodeData(t, resp, &pair)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	return pair
}

func doJSON(t *testing.T, method string, url string, payload any, accessToken string) *http.Response {
	t.Helper()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeData(t *testing.T, resp *http.Response, dst any) {
	t.Helper()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error.Code
}
