package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingSecret is returned when JWT_SECRET is unset or blank. The process
// must not start without it.
var ErrMissingSecret = errors.New("JWT_SECRET is required")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DenylistNone     = "none"
	DenylistMemory   = "memory"
	DenylistDatabase = "database"
	DenylistRedis    = "redis"

	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	AppEnv                  string
	LogLevel                string
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	DatabaseDriver string
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32

	JWTSecret     string
	JWTAlgorithm  string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	ResetTokenTTL time.Duration
	ResetLinkBase string

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	MetricsEnabled   bool
	MetricsToken     string
	// TrustedProxies lists the peers whose forwarding headers are believed.
	// Everyone else is identified by the socket address alone.
	TrustedProxies []netip.Prefix

	DenylistBackend string
	RedisURL        string
	CleanupInterval time.Duration

	SeedAdminPassword string
	BcryptCost        int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:                  strings.ToLower(getEnv("APP_ENV", EnvProduction)),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		DatabaseDriver:          strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:             getEnv("DATABASE_URL", "file:telemedicine.db"),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 2)),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAlgorithm:            strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256")),
		JWTAccessTTL:            getDuration("JWT_ACCESS_TTL", 30*time.Minute),
		JWTRefreshTTL:           getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		ResetTokenTTL:           getDuration("RESET_TOKEN_TTL", time.Hour),
		ResetLinkBase:           getEnv("RESET_LINK_BASE_URL", "http://localhost:5173/#/reset-password"),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),
		MetricsEnabled:          getBool("METRICS_ENABLED", false),
		MetricsToken:            strings.TrimSpace(os.Getenv("METRICS_TOKEN")),
		DenylistBackend:         strings.ToLower(getEnv("DENYLIST_BACKEND", DenylistNone)),
		RedisURL:                getEnv("REDIS_URL", ""),
		CleanupInterval:         getDuration("CLEANUP_INTERVAL", time.Hour),
		SeedAdminPassword:       getEnv("SEED_ADMIN_PASSWORD", "admin123"),
		BcryptCost:              getInt("BCRYPT_COST", 12),
	}

	proxies, err := parsePrefixes(splitCSV(getEnv("TRUSTED_PROXIES", "")))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingSecret
	}

	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM %q is not supported", c.JWTAlgorithm)
	}

	if c.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}

	if c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_REFRESH_TTL must be positive")
	}

	if c.ResetTokenTTL <= 0 {
		return fmt.Errorf("RESET_TOKEN_TTL must be positive")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DATABASE_DRIVER %q is not supported", c.DatabaseDriver)
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}

	switch c.DenylistBackend {
	case DenylistNone, DenylistMemory, DenylistDatabase:
	case DenylistRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when DENYLIST_BACKEND is redis")
		}
	default:
		return fmt.Errorf("DENYLIST_BACKEND %q is not supported", c.DenylistBackend)
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

// parsePrefixes accepts CIDR ranges and bare addresses, which become
// single-host prefixes.
func parsePrefixes(values []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, v := range values {
		if strings.Contains(v, "/") {
			prefix, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
