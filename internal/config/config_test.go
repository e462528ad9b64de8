package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("TOKEN_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "nfc4care" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "nfc4care")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if !cfg.MaintenanceEnabled {
		t.Error("MaintenanceEnabled should default to true")
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", cfg.TokenTTL())
	}
	if cfg.SweepInterval() != time.Hour {
		t.Errorf("SweepInterval = %v, want 1h", cfg.SweepInterval())
	}
	if cfg.ConsolidateInterval() != 30*time.Minute {
		t.Errorf("ConsolidateInterval = %v, want 30m", cfg.ConsolidateInterval())
	}
	if cfg.Retention() != 24*time.Hour {
		t.Errorf("Retention = %v, want 24h", cfg.Retention())
	}
	if cfg.LoginRateLimit != 10 {
		t.Errorf("LoginRateLimit = %d, want 10", cfg.LoginRateLimit)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("JWT_ISSUER", "custom-issuer")
	t.Setenv("BCRYPT_COST", "14")
	t.Setenv("SESSION_SWEEP_INTERVAL", "5m")
	t.Setenv("SESSION_CONSOLIDATE_INTERVAL", "90s")
	t.Setenv("TOKEN_TTL", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.SweepInterval() != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want 5m", cfg.SweepInterval())
	}
	if cfg.ConsolidateInterval() != 90*time.Second {
		t.Errorf("ConsolidateInterval = %v, want 90s", cfg.ConsolidateInterval())
	}
	if cfg.TokenTTL() != 2*time.Hour {
		t.Errorf("TokenTTL = %v, want 2h", cfg.TokenTTL())
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	t.Setenv("BCRYPT_COST", "40")
	if _, err := Load(); err == nil {
		t.Fatal("Load with BCRYPT_COST=40 should fail")
	}
}

func TestLoad_BootstrapRejectedInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("BOOTSTRAP_DEFAULT_PROFESSIONAL", "true")
	if _, err := Load(); err == nil {
		t.Fatal("Load should reject bootstrap account in production")
	}
}

func TestDurations_InvalidFallsBack(t *testing.T) {
	cfg := &Config{
		TokenTTLRaw:            "soon",
		SweepIntervalRaw:       "-1h",
		ConsolidateIntervalRaw: "",
		RetentionRaw:           "0s",
		LoginRateWindowRaw:     "x",
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", cfg.TokenTTL())
	}
	if cfg.SweepInterval() != time.Hour {
		t.Errorf("SweepInterval = %v, want 1h", cfg.SweepInterval())
	}
	if cfg.ConsolidateInterval() != 30*time.Minute {
		t.Errorf("ConsolidateInterval = %v, want 30m", cfg.ConsolidateInterval())
	}
	if cfg.Retention() != 24*time.Hour {
		t.Errorf("Retention = %v, want 24h", cfg.Retention())
	}
	if cfg.LoginRateWindow() != time.Minute {
		t.Errorf("LoginRateWindow = %v, want 1m", cfg.LoginRateWindow())
	}
}

func TestTokenSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"short", "too-short", true},
		{"ok", "0123456789abcdef0123456789abcdef", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{JWTSecret: tc.secret}
			key, err := cfg.TokenSecret()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("TokenSecret: %v", err)
			}
			if len(key) != 32 {
				t.Errorf("key length = %d, want 32", len(key))
			}
		})
	}
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.0.2.7 ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.TrustedProxies()
	if len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "192.0.2.7" {
		t.Errorf("TrustedProxies = %q", got)
	}

	empty := &Config{}
	if n := len(empty.TrustedProxies()); n != 0 {
		t.Errorf("empty TrustedProxies returned %d entries", n)
	}
}
