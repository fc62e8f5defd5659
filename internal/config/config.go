// Package config loads gateway configuration from defaults, an optional YAML
// file and VITALSYNC_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VITALSYNC_"

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	CORS      CORSConfig      `yaml:"cors" envPrefix:"CORS_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Uploads   UploadsConfig   `yaml:"uploads" envPrefix:"UPLOADS_"`
	Cache     CacheConfig     `yaml:"cache" envPrefix:"CACHE_"`
	Reminders RemindersConfig `yaml:"reminders" envPrefix:"REMINDERS_"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// AuditLogPath, when set, appends audit entries to this file as JSON lines.
	AuditLogPath    string `yaml:"audit_log_path" env:"AUDIT_LOG_PATH"`
	AuditBufferSize int    `yaml:"audit_buffer_size" env:"AUDIT_BUFFER_SIZE"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver is "memory" or "postgres".
	Driver          string        `yaml:"driver" env:"DRIVER"`
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL    time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	Issuer      string        `yaml:"issuer" env:"ISSUER"`
	AdminEmails []string      `yaml:"admin_emails" env:"ADMIN_EMAILS" envSeparator:","`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" env:"ENABLED"`
	RequestsPerSecond int  `yaml:"requests_per_second" env:"RPS"`
	Burst             int  `yaml:"burst" env:"BURST"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type UploadsConfig struct {
	// Backend is "disk" or "s3".
	Backend       string `yaml:"backend" env:"BACKEND"`
	Dir           string `yaml:"dir" env:"DIR"`
	PublicBaseURL string `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	MaxBytes      int64  `yaml:"max_bytes" env:"MAX_BYTES"`
	S3Bucket      string `yaml:"s3_bucket" env:"S3_BUCKET"`
	S3Region      string `yaml:"s3_region" env:"S3_REGION"`
	S3Endpoint    string `yaml:"s3_endpoint" env:"S3_ENDPOINT"`
}

type CacheConfig struct {
	// RedisAddr enables the Redis leaderboard cache when set.
	RedisAddr      string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword  string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB        int           `yaml:"redis_db" env:"REDIS_DB"`
	LeaderboardTTL time.Duration `yaml:"leaderboard_ttl" env:"LEADERBOARD_TTL"`
}

type RemindersConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Schedule string `yaml:"schedule" env:"SCHEDULE"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AuditBufferSize: 500,
		},
		Database: DatabaseConfig{
			Driver:          "memory",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			Issuer:   "vitalsync",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Uploads: UploadsConfig{
			Backend:       "disk",
			Dir:           "uploads",
			PublicBaseURL: "/uploads",
			MaxBytes:      5 << 20,
		},
		Cache: CacheConfig{LeaderboardTTL: 30 * time.Second},
		Reminders: RemindersConfig{
			Enabled:  true,
			Schedule: "@every 1m",
		},
	}
}

// Load builds the configuration. path may be empty; a missing file is an error
// only when a path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q not supported", c.Database.Driver))
	}

	switch c.Uploads.Backend {
	case "disk":
		if c.Uploads.Dir == "" {
			errs = append(errs, errors.New("uploads.dir is required for disk backend"))
		}
	case "s3":
		if c.Uploads.S3Bucket == "" {
			errs = append(errs, errors.New("uploads.s3_bucket is required for s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("uploads.backend %q not supported", c.Uploads.Backend))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit requires positive requests_per_second and burst"))
	}
	if c.Reminders.Enabled && strings.TrimSpace(c.Reminders.Schedule) == "" {
		errs = append(errs, errors.New("reminders.schedule is required when reminders are enabled"))
	}

	return errors.Join(errs...)
}

// IsAdminEmail reports whether email is in the admin allowlist.
func (a AuthConfig) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, candidate := range a.AdminEmails {
		if strings.ToLower(strings.TrimSpace(candidate)) == email {
			return true
		}
	}
	return false
}
