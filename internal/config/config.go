package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"timeline/internal/db"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Session  SessionConfig
	Redis    RedisConfig
	Upload   UploadConfig
	Log      LogConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr  string // listen address (e.g., ":8080")
	Debug bool
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	URL string // postgres:// URL or SQLite file path
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	SecretKey     string // signs session and flash cookies
	AdminPassword string // password of the seeded admin user
	SecureCookie  bool
}

// SessionConfig selects and tunes the session backend.
type SessionConfig struct {
	Backend string // "sql" or "redis"
	MaxAge  time.Duration
}

// RedisConfig is used when Session.Backend is "redis".
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// UploadConfig contains profile image upload settings.
type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

// LogConfig contains logging settings.
type LogConfig struct {
	File string // optional log file, in addition to stdout
}

const (
	BackendSQL   = "sql"
	BackendRedis = "redis"

	DefaultMaxUploadBytes = 2 * 1024 * 1024
)

// Load loads configuration from environment variables with sensible defaults.
// SECRET_KEY must be set.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}
	if cfg.Auth.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a fixed SECRET_KEY when none is set.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

func load(defaultSecret string) (*Config, error) {
	debug, err := getEnvBool("DEBUG", false)
	if err != nil {
		return nil, err
	}
	secure, err := getEnvBool("SECURE_COOKIE", false)
	if err != nil {
		return nil, err
	}
	maxAge, err := getEnvDuration("SESSION_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	maxBytes, err := getEnvInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}

	addr := getEnv("ADDR", "")
	if addr == "" {
		addr = ":8080"
		if p := os.Getenv("PORT"); p != "" {
			addr = ":" + p
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:  addr,
			Debug: debug,
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "data/timeline.db"),
		},
		Auth: AuthConfig{
			SecretKey:     getEnv("SECRET_KEY", defaultSecret),
			AdminPassword: getEnv("ADMIN_PASSWORD", "admin"),
			SecureCookie:  secure,
		},
		Session: SessionConfig{
			Backend: strings.ToLower(getEnv("SESSION_BACKEND", BackendSQL)),
			MaxAge:  maxAge,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Upload: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "static/uploads"),
			MaxBytes: int64(maxBytes),
		},
		Log: LogConfig{
			File: getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught while parsing.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case BackendSQL, BackendRedis:
	default:
		return fmt.Errorf("invalid SESSION_BACKEND %q: want %q or %q", c.Session.Backend, BackendSQL, BackendRedis)
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.Upload.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	return nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		return b, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	dsn := c.Database.URL
	if db.IsPostgres(dsn) {
		dsn = "postgres://*** (masked) ***"
	}
	return fmt.Sprintf("Config{Addr: %s, Debug: %t, DB: %s, Sessions: %s, Uploads: %s (max %d bytes), Auth: *** (masked) ***}",
		c.Server.Addr, c.Server.Debug, dsn, c.Session.Backend, c.Upload.Dir, c.Upload.MaxBytes)
}
