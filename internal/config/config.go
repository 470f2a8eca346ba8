package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all externally supplied settings. Values come from the
// environment (optionally loaded from configs/.env by main).
type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	GinMode string `envconfig:"GIN_MODE" default:"debug"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"postgres"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	JWTSecret           string        `envconfig:"JWT_SECRET"`
	AccessTokenTTL      time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL     time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"720h"`
	RotateRefreshTokens bool          `envconfig:"ROTATE_REFRESH_TOKENS" default:"false"`

	SeedRBAC bool `envconfig:"SEED_RBAC" default:"false"`

	// Rate limits in limiter "count-period" notation ("5-M" = 5 per minute).
	// AuthRateLimit guards login against brute force; APIRateLimit covers
	// the other unauthenticated auth endpoints.
	AuthRateLimit string `envconfig:"AUTH_RATE_LIMIT" default:"5-M"`
	APIRateLimit  string `envconfig:"API_RATE_LIMIT" default:"60-M"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			return nil, fmt.Errorf("config: JWT_SECRET is required in release mode")
		}
		// Development fallback only
		cfg.JWTSecret = "default_super_secret_key"
	}

	return &cfg, nil
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort +
		"/" + c.DBName + "?sslmode=" + c.DBSSLMode
}
