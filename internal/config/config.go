package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Keydex server.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Fingerprint FingerprintConfig
	Auth        AuthConfig
	Sweep       SweepConfig
	Analytics   AnalyticsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// FingerprintConfig carries the server-side secret mixed into visitor
// fingerprints. An empty salt is allowed but weakens pseudonymity.
type FingerprintConfig struct {
	Salt string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// SweepConfig controls the CD-key expiry sweep. Interval is how often the
// background ticker fires; MinInterval is the cross-instance gate enforced
// through Redis.
type SweepConfig struct {
	Interval    time.Duration
	MinInterval time.Duration
}

type AnalyticsConfig struct {
	FlushInterval time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("KEYDEX_PORT", 8080),
			Env:  envString("KEYDEX_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Fingerprint: FingerprintConfig{
			Salt: envString("KEYDEX_FINGERPRINT_SALT", ""),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("KEYDEX_JWT_SECRET"),
			TokenTTL:  envDuration("KEYDEX_TOKEN_TTL", 12*time.Hour),
		},
		Sweep: SweepConfig{
			Interval:    envDuration("KEYDEX_SWEEP_INTERVAL", 1*time.Hour),
			MinInterval: envDuration("KEYDEX_SWEEP_MIN_INTERVAL", 10*time.Minute),
		},
		Analytics: AnalyticsConfig{
			FlushInterval: envDuration("KEYDEX_ANALYTICS_FLUSH_INTERVAL", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("KEYDEX_JWT_SECRET is required")
	}

	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("KEYDEX_SWEEP_INTERVAL must be positive")
	}
	if c.Sweep.MinInterval <= 0 {
		return fmt.Errorf("KEYDEX_SWEEP_MIN_INTERVAL must be positive")
	}
	if c.Sweep.MinInterval > c.Sweep.Interval {
		return fmt.Errorf("KEYDEX_SWEEP_MIN_INTERVAL must not exceed KEYDEX_SWEEP_INTERVAL")
	}

	if c.Analytics.FlushInterval <= 0 {
		return fmt.Errorf("KEYDEX_ANALYTICS_FLUSH_INTERVAL must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
