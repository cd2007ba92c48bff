// Package config loads service configuration from KEYWARD_-prefixed
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Rate   RateConfig
	AI     AIConfig

	// Strict refuses to start without a database DSN and signing secret.
	// When false the service falls back to in-memory storage, which is
	// intended for local development only.
	Strict bool
	Debug  bool
}

type ServerConfig struct {
	Addr string
}

type DBConfig struct {
	DSN      string
	MaxConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	JWTAlg    string
	TokenTTL  time.Duration
}

type RateConfig struct {
	PerMinute      int
	LoginPerMinute int
}

type AIConfig struct {
	OllamaURL string
	Model     string
}

func Load() (*Config, error) {
	maxConns, err := getEnvInt("KEYWARD_PG_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid KEYWARD_PG_MAX_CONNS: %w", err)
	}
	redisDB, err := getEnvInt("KEYWARD_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid KEYWARD_REDIS_DB: %w", err)
	}
	ttlMinutes, err := getEnvInt("KEYWARD_TOKEN_TTL_MINUTES", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid KEYWARD_TOKEN_TTL_MINUTES: %w", err)
	}
	perMinute, err := getEnvInt("KEYWARD_RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid KEYWARD_RATE_LIMIT_PER_MINUTE: %w", err)
	}
	loginPerMinute, err := getEnvInt("KEYWARD_LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid KEYWARD_LOGIN_RATE_LIMIT_PER_MINUTE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnv("KEYWARD_ADDR", ":8080"),
		},
		DB: DBConfig{
			DSN:      getEnv("KEYWARD_PG_DSN", ""),
			MaxConns: maxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("KEYWARD_REDIS_ADDR", ""),
			Password: getEnv("KEYWARD_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("KEYWARD_JWT_SECRET", ""),
			JWTAlg:    getEnv("KEYWARD_JWT_ALG", "HS256"),
			TokenTTL:  time.Duration(ttlMinutes) * time.Minute,
		},
		Rate: RateConfig{
			PerMinute:      perMinute,
			LoginPerMinute: loginPerMinute,
		},
		AI: AIConfig{
			OllamaURL: getEnv("KEYWARD_OLLAMA_URL", "http://localhost:11434"),
			Model:     getEnv("KEYWARD_OLLAMA_MODEL", "llama3"),
		},
		Strict: getEnvBool("KEYWARD_STRICT", false),
		Debug:  getEnvBool("KEYWARD_DEBUG", false),
	}
	return cfg, nil
}

// Validate checks strict-mode requirements. The signing secret is always
// required: tokens issued under a blank secret would be forgeable.
func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "KEYWARD_JWT_SECRET")
	}
	if c.Strict && c.DB.DSN == "" {
		missing = append(missing, "KEYWARD_PG_DSN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("KEYWARD_TOKEN_TTL_MINUTES must be positive")
	}
	if c.Rate.PerMinute <= 0 || c.Rate.LoginPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
