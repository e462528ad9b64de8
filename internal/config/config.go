// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSecretLength is the minimum HMAC secret size accepted for token signing.
const MinSecretLength = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBAutoMigrate applies embedded migrations on server startup.
	DBAutoMigrate bool `mapstructure:"DB_AUTO_MIGRATE"`

	// JWTSecret is the shared HMAC key for HS256 session tokens. Signer and verifier must be redeployed together to rotate it.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim written into every token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// TokenTTLRaw is the session token lifetime (e.g. "24h").
	TokenTTLRaw string `mapstructure:"TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	SweepIntervalRaw       string `mapstructure:"SESSION_SWEEP_INTERVAL"`
	ConsolidateIntervalRaw string `mapstructure:"SESSION_CONSOLIDATE_INTERVAL"`
	RetentionRaw           string `mapstructure:"SESSION_RETENTION"`
	// MaintenanceEnabled runs the session maintenance scheduler inside cmd/server.
	// Disable it when cmd/worker runs as a dedicated process.
	MaintenanceEnabled bool `mapstructure:"MAINTENANCE_ENABLED"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// RedisAddr enables the Redis-backed login limiter; empty falls back to in-memory.
	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`
	LoginRateLimit     int    `mapstructure:"LOGIN_RATE_LIMIT"`
	LoginRateWindowRaw string `mapstructure:"LOGIN_RATE_WINDOW"`

	// TrustedProxiesRaw is a comma separated list of CIDR blocks or IPs whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty trusts no one.
	TrustedProxiesRaw string `mapstructure:"TRUSTED_PROXIES"`

	// BootstrapDefaultProfessional creates the development doctor account at startup when missing.
	BootstrapDefaultProfessional bool `mapstructure:"BOOTSTRAP_DEFAULT_PROFESSIONAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "nfc4care")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")
	v.SetDefault("SESSION_CONSOLIDATE_INTERVAL", "30m")
	v.SetDefault("SESSION_RETENTION", "24h")
	v.SetDefault("MAINTENANCE_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "nfc4care-backend")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("LOGIN_RATE_WINDOW", "1m")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("BOOTSTRAP_DEFAULT_PROFESSIONAL", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.BootstrapDefaultProfessional && cfg.IsProduction() {
		return nil, errors.New("config: BOOTSTRAP_DEFAULT_PROFESSIONAL must not be true when APP_ENV=production")
	}

	if cfg.LoginRateLimit < 0 {
		return nil, errors.New("config: LOGIN_RATE_LIMIT must not be negative")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// TokenSecret returns the HMAC signing key. It fails when the secret is unset or shorter than MinSecretLength bytes.
func (c *Config) TokenSecret() ([]byte, error) {
	s := strings.TrimSpace(c.JWTSecret)
	if s == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	if len(s) < MinSecretLength {
		return nil, errors.New("config: JWT_SECRET must be at least 32 bytes")
	}
	return []byte(s), nil
}

// TokenTTL parses TOKEN_TTL. Returns 24h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	return parseDuration(c.TokenTTLRaw, 24*time.Hour)
}

// SweepInterval parses SESSION_SWEEP_INTERVAL. Returns 1h if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SweepIntervalRaw, time.Hour)
}

// ConsolidateInterval parses SESSION_CONSOLIDATE_INTERVAL. Returns 30m if unset or invalid.
func (c *Config) ConsolidateInterval() time.Duration {
	return parseDuration(c.ConsolidateIntervalRaw, 30*time.Minute)
}

// Retention parses SESSION_RETENTION, the age past expiry after which records are purged. Returns 24h if unset or invalid.
func (c *Config) Retention() time.Duration {
	return parseDuration(c.RetentionRaw, 24*time.Hour)
}

// LoginRateWindow parses LOGIN_RATE_WINDOW. Returns 1m if unset or invalid.
func (c *Config) LoginRateWindow() time.Duration {
	return parseDuration(c.LoginRateWindowRaw, time.Minute)
}

// TrustedProxies splits TRUSTED_PROXIES on commas, dropping blank entries.
func (c *Config) TrustedProxies() []string {
	var out []string
	for _, part := range strings.Split(c.TrustedProxiesRaw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
