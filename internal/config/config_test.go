package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingSecretFailsFast(t *testing.T) {
	t.Setenv("JWT_SECRET", "   ")

	cfg, err := Load()
	require.ErrorIs(t, err, ErrMissingSecret)
	assert.Nil(t, cfg)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, 30*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, DenylistNone, cfg.DenylistBackend)
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.MetricsEnabled, "metrics must be opted into")
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.7,2001:db8::/32")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
		netip.MustParsePrefix("2001:db8::/32"),
	}, cfg.TrustedProxies)
}

func TestLoad_InvalidTrustedProxyFails(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,load-balancer")

	cfg, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
	assert.Nil(t, cfg)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("RESET_TOKEN_TTL", "15m")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("APP_ENV", "Development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "HS512", cfg.JWTAlgorithm)
	assert.Equal(t, 5*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 15*time.Minute, cfg.ResetTokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_REFRESH_TTL", "a week")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshTTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:       "s",
			JWTAlgorithm:    "HS256",
			JWTAccessTTL:    time.Minute,
			JWTRefreshTTL:   time.Hour,
			ResetTokenTTL:   time.Hour,
			ServerPort:      "8080",
			RequestTimeout:  time.Second,
			DatabaseDriver:  DriverSQLite,
			DatabaseURL:     ":memory:",
			DenylistBackend: DenylistNone,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"asymmetric algorithm", func(c *Config) { c.JWTAlgorithm = "RS256" }},
		{"none algorithm", func(c *Config) { c.JWTAlgorithm = "none" }},
		{"zero access ttl", func(c *Config) { c.JWTAccessTTL = 0 }},
		{"negative reset ttl", func(c *Config) { c.ResetTokenTTL = -time.Minute }},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }},
		{"redis without url", func(c *Config) { c.DenylistBackend = DenylistRedis }},
		{"unknown denylist", func(c *Config) { c.DenylistBackend = "etcd" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
