package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// DefaultTwitchClientID is the public client identifier, injected via ldflags at build time.
var DefaultTwitchClientID = ""

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	AppEnv             string `env:"APP_ENV" default:"development"`
	Port               string `env:"PORT" default:"8080"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	LogFormat          string `env:"LOG_FORMAT" default:"text"`
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchScopes       string `env:"TWITCH_SCOPES"`
	TwitchAuthURL      string `env:"TWITCH_AUTH_URL" default:"https://id.twitch.tv/oauth2"`
	TwitchAPIURL       string `env:"TWITCH_API_URL" default:"https://api.twitch.tv/helix"`
	StorageBackend     string `env:"STORAGE_BACKEND" default:"memory"`
	RedisURL           string `env:"REDIS_URL"`
	DatabaseURL        string `env:"DATABASE_URL"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	APIPointsPerMinute int `env:"API_POINTS_PER_MINUTE" default:"800"`

	HTTPTimeout           time.Duration `env:"HTTP_TIMEOUT" default:"10s"`
	DiscoveryInterval     time.Duration `env:"DISCOVERY_INTERVAL" default:"30m"`
	DiscoveryStartupDelay time.Duration `env:"DISCOVERY_STARTUP_DELAY" default:"1m"`
	// Zero keeps completed records forever.
	CompletedRecordRetention time.Duration `env:"COMPLETED_RECORD_RETENTION" default:"0s"`
	// Only used with the redis backend; zero lets every instance run scheduled jobs.
	LeaderLeaseTTL time.Duration `env:"LEADER_LEASE_TTL" default:"1h"`
}

// Scopes splits TwitchScopes on whitespace and commas.
func (c *Config) Scopes() []string {
	return strings.FieldsFunc(c.TwitchScopes, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.TwitchClientID == "" {
		cfg.TwitchClientID = DefaultTwitchClientID
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.TwitchClientID == "" {
		return errors.New("TWITCH_CLIENT_ID is required")
	}

	switch cfg.StorageBackend {
	case StorageMemory:
	case StorageRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORAGE_BACKEND is redis")
		}
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of memory, redis, postgres, got %q", cfg.StorageBackend)
	}

	if cfg.APIPointsPerMinute <= 0 {
		return errors.New("API_POINTS_PER_MINUTE must be positive")
	}
	if cfg.DiscoveryInterval < time.Minute {
		return errors.New("DISCOVERY_INTERVAL must be at least 1m")
	}
	if cfg.CompletedRecordRetention < 0 {
		return errors.New("COMPLETED_RECORD_RETENTION must not be negative")
	}
	if cfg.LeaderLeaseTTL < 0 {
		return errors.New("LEADER_LEASE_TTL must not be negative")
	}
	if cfg.LeaderLeaseTTL > 0 && cfg.LeaderLeaseTTL <= cfg.DiscoveryInterval {
		return errors.New("LEADER_LEASE_TTL must be longer than DISCOVERY_INTERVAL")
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	return nil
}
