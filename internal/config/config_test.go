package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
	if cfg.DB.MaxConns != 10 {
		t.Fatalf("max conns = %d", cfg.DB.MaxConns)
	}
	if cfg.Auth.JWTAlg != "HS256" {
		t.Fatalf("alg = %s", cfg.Auth.JWTAlg)
	}
	if cfg.Auth.TokenTTL != 60*time.Minute {
		t.Fatalf("ttl = %v", cfg.Auth.TokenTTL)
	}
	if cfg.Rate.PerMinute != 60 || cfg.Rate.LoginPerMinute != 10 {
		t.Fatalf("rates = %d, %d", cfg.Rate.PerMinute, cfg.Rate.LoginPerMinute)
	}
	if cfg.Strict {
		t.Fatalf("strict should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KEYWARD_ADDR", ":9999")
	t.Setenv("KEYWARD_TOKEN_TTL_MINUTES", "5")
	t.Setenv("KEYWARD_RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("KEYWARD_STRICT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Auth.TokenTTL != 5*time.Minute {
		t.Fatalf("ttl = %v", cfg.Auth.TokenTTL)
	}
	if cfg.Rate.PerMinute != 30 {
		t.Fatalf("rate = %d", cfg.Rate.PerMinute)
	}
	if !cfg.Strict {
		t.Fatalf("strict not set")
	}
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("KEYWARD_TOKEN_TTL_MINUTES", "sixty")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-numeric ttl")
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "KEYWARD_JWT_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}

	cfg.Auth.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateStrictRequiresDSN(t *testing.T) {
	t.Setenv("KEYWARD_JWT_SECRET", "secret")
	t.Setenv("KEYWARD_STRICT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "KEYWARD_PG_DSN") {
		t.Fatalf("expected missing dsn error, got %v", err)
	}

	t.Setenv("KEYWARD_PG_DSN", "postgres://localhost/keyward")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("KEYWARD_JWT_SECRET", "secret")
	t.Setenv("KEYWARD_LOGIN_RATE_LIMIT_PER_MINUTE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero login limit")
	}
}
