//go:build integration

package integration

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlowAndProtectedEndpoints(t *testing.T) {
	t.Parallel()

	server := newServer(t, testConfig(t))

	signup := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/signup", map[string]string{
		"username": "patient1",
		"email":    "patient1@example.com",
		"password": "Password123!",
		"role":     "patient",
	}, "")
	require.Equal(t, http.StatusCreated, signup.StatusCode)

	pair := login(t, server, "patient1", "Password123!")
	assert.Equal(t, "bearer", pair.TokenType)

	me := doJSON(t, http.MethodGet, server.URL+"/api/v1/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, me.StatusCode)
	var user struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	decodeData(t, me, &user)
	assert.Equal(t, "patient1", user.Username)
	assert.Equal(t, "patient", user.Role)

	refresh := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, refresh.StatusCode)
	var access tokenPair
	decodeData(t, refresh, &access)
	require.NotEmpty(t, access.AccessToken)

	me = doJSON(t, http.MethodGet, server.URL+"/api/v1/auth/me", nil, access.AccessToken)
	require.Equal(t, http.StatusOK, me.StatusCode)

	refreshAsAccess := doJSON(t, http.MethodGet, server.URL+"/api/v1/auth/me", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, refreshAsAccess.StatusCode)

	users := doJSON(t, http.MethodGet, server.URL+"/api/v1/users", nil, pair.AccessToken)
	assert.Equal(t, http.StatusForbidden, users.StatusCode)

	logout := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/logout", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, pair.AccessToken)
	require.Equal(t, http.StatusOK, logout.StatusCode)

	me = doJSON(t, http.MethodGet, server.URL+"/api/v1/auth/me", nil, pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, me.StatusCode)
}

func TestAdminSeesUsersAndAudit(t *testing.T) {
	t.Parallel()

	server := newServer(t, testConfig(t))
	admin := login(t, server, "admin", adminPassword)

	users := doJSON(t, http.MethodGet, server.URL+"/api/v1/users", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, users.StatusCode)

	assert.Eventually(t, func() bool {
		resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/audit?action=user.login", nil, admin.AccessToken)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var data struct {
			Items []struct {
				Action string `json:"action"`
			} `json:"items"`
		}
		decodeData(t, resp, &data)
		return len(data.Items) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLoginFailureDoesNotRevealAccounts(t *testing.T) {
	t.Parallel()

	server := newServer(t, testConfig(t))

	wrongPassword := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/login", map[string]string{
		"username": "admin",
		"password": "wrong-password",
	}, "")
	unknownUser := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/login", map[string]string{
		"username": "ghost",
		"password": "wrong-password",
	}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.StatusCode)
	assert.Equal(t, errorCode(t, wrongPassword), errorCode(t, unknownUser))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) resetLink() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	scanner := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for scanner.Scan() {
		var entry struct {
			Msg  string `json:"msg"`
			Link string `json:"link"`
		}
		if json.Unmarshal(scanner.Bytes(), &entry) == nil && entry.Msg == "password reset link" {
			return entry.Link
		}
	}
	return ""
}

// Not parallel: captures the process-wide logger to read the development
// reset link.
func TestPasswordResetFlow(t *testing.T) {
	logs := &lockedBuffer{}
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(logs, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	server := newServer(t, testConfig(t))

	known := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/forgot-password", map[string]string{
		"email": "admin@example.com",
	}, "")
	unknown := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/forgot-password", map[string]string{
		"email": "ghost@example.com",
	}, "")
	require.Equal(t, http.StatusOK, known.StatusCode)
	require.Equal(t, http.StatusOK, unknown.StatusCode)

	var knownMsg, unknownMsg struct {
		Message string `json:"message"`
	}
	decodeData(t, known, &knownMsg)
	decodeData(t, unknown, &unknownMsg)
	assert.Equal(t, knownMsg, unknownMsg)

	var link string
	require.Eventually(t, func() bool {
		link = logs.resetLink()
		return link != ""
	}, 2*time.Second, 10*time.Millisecond)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	resetToken := parsed.Query().Get("token")
	require.NotEmpty(t, resetToken)
	assert.True(t, strings.HasPrefix(link, "http://localhost:5173/reset-password?token="))

	reset := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/reset-password", map[string]string{
		"token":        resetToken,
		"new_password": "a-new-password",
	}, "")
	require.Equal(t, http.StatusOK, reset.StatusCode)

	login(t, server, "admin", "a-new-password")

	oldPassword := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/login", map[string]string{
		"username": "admin",
		"password": adminPassword,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, oldPassword.StatusCode)

	replay := doJSON(t, http.MethodPost, server.URL+"/api/v1/auth/reset-password", map[string]string{
		"token":        resetToken,
		"new_password": "yet-another-password",
	}, "")
	assert.Equal(t, http.StatusBadRequest, replay.StatusCode)
	assert.Equal(t, "INVALID_RESET_TOKEN", errorCode(t, replay))
}
