package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Database      DatabaseConfig
	Import        ImportConfig
	Storage       StorageConfig
	Watch         WatchConfig
	Observability ObservabilityConfig
}

type DatabaseConfig struct {
	Driver   string // "postgres" or "sqlite"
	URL      string // full DSN; overrides the discrete postgres fields
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// SQLitePath is the database file when Driver is "sqlite".
	SQLitePath string
	MaxConns   int
}

type ImportConfig struct {
	PatternFile          string
	Timezone             string
	Timeout              time.Duration
	BypassDuplicateCheck bool
}

type StorageConfig struct {
	Path      string
	Retention time.Duration
}

type WatchConfig struct {
	InboxDir      string
	Schedule      string
	PruneSchedule string
	PerMinute     int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
	LogLevel       slog.Level
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			URL:        getEnv("DATABASE_URL", ""),
			Host:       getEnv("POSTGRES_HOST", "localhost"),
			Port:       getEnvAsInt("POSTGRES_PORT", 5432),
			User:       getEnv("POSTGRES_USER", "postgres"),
			Password:   getEnv("POSTGRES_PASSWORD", "postgres"),
			Database:   getEnv("POSTGRES_DB", "statements"),
			SSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "statements.db"),
			MaxConns:   getEnvAsInt("DB_MAX_CONNS", 10),
		},
		Import: ImportConfig{
			PatternFile:          getEnv("PATTERN_FILE", "configs/patterns.yaml"),
			Timezone:             getEnv("IMPORT_TIMEZONE", "Europe/Moscow"),
			Timeout:              getEnvAsDuration("IMPORT_TIMEOUT", 2*time.Minute),
			BypassDuplicateCheck: getEnvAsBool("IMPORT_BYPASS_DUPLICATE_CHECK", false),
		},
		Storage: StorageConfig{
			Path:      getEnv("STORAGE_PATH", "data/archive"),
			Retention: getEnvAsDuration("STORAGE_RETENTION", 30*24*time.Hour),
		},
		Watch: WatchConfig{
			InboxDir:      getEnv("INBOX_DIR", "data/inbox"),
			Schedule:      getEnv("WATCH_SCHEDULE", "@every 1m"),
			PruneSchedule: getEnv("PRUNE_SCHEDULE", "0 3 * * *"),
			PerMinute:     getEnvAsInt("WATCH_PER_MINUTE", 30),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
			LogLevel:       getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
		},
	}

	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", cfg.Database.Driver)
	}

	if cfg.Import.Timeout <= 0 {
		return nil, fmt.Errorf("IMPORT_TIMEOUT must be positive, got %s", cfg.Import.Timeout)
	}

	return cfg, nil
}

// DSN returns the database connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Location loads the import timezone.
func (c *ImportConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid IMPORT_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		return defaultValue
	}
	return level
}
