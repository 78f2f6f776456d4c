package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Env         string   `env:"ENV" env-default:"local"`
	Port        string   `env:"PORT" env-default:"8080"`
	DatabaseURL string   `env:"DATABASE_URL" env-required:"true"`
	RedisURL    string   `env:"REDIS_URL"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`

	Auth    AuthConfig
	Cache   CacheConfig
	Timeout time.Duration `env:"REQUEST_TIMEOUT" env-default:"5s"`
}

// AuthConfig controls token issuance and verification.
type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET" env-required:"true"`
	RefreshSecret   string        `env:"REFRESH_TOKEN_SECRET"`
	Issuer          string        `env:"JWT_ISSUER" env-default:"store-rating-backend"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	JanitorPeriod   time.Duration `env:"REFRESH_JANITOR_PERIOD" env-default:"30m"`
}

// CacheConfig controls the store listing cache and event channel.
type CacheConfig struct {
	StoresTTL     time.Duration `env:"STORES_CACHE_TTL" env-default:"60s"`
	EventsChannel string        `env:"EVENTS_CHANNEL" env-default:"storerating:events"`
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.Auth.JWTSecret = strings.TrimSpace(cfg.Auth.JWTSecret)
	cfg.Auth.RefreshSecret = strings.TrimSpace(cfg.Auth.RefreshSecret)
	if cfg.Auth.RefreshSecret == "" {
		cfg.Auth.RefreshSecret = cfg.Auth.JWTSecret
	}
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return Config{}, fmt.Errorf("token TTLs must be positive")
	}
	if cfg.Cache.StoresTTL <= 0 {
		return Config{}, fmt.Errorf("STORES_CACHE_TTL must be positive")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return net.JoinHostPort("", c.Port)
}

func trimAll(in []string) []string {
	var out []string
	for _, part := range in {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
