package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the uitrack service.
type Config struct {
	Server     ServerConfig
	ClickHouse ClickHouseConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Export     ExportConfig
	Geo        GeoConfig
	Log        LogConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// ClickHouseConfig configures the primary analytical event store.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	Username string
	Password string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

// RateLimitConfig configures admission control. RPS/Burst drive the
// process-local token bucket; WindowBudget/Window drive the optional
// Redis-backed fixed-window budget per client.
type RateLimitConfig struct {
	Enabled      bool
	RPS          float64
	Burst        int
	WindowBudget int
	Window       time.Duration
}

// ExportConfig configures the snapshot export pipeline.
type ExportConfig struct {
	Dir         string
	MaxRecords  int
	GracePeriod time.Duration
}

// GeoConfig configures optional ingest-time location enrichment.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("UITRACK_HTTP_ADDR", ":8080"),
			Env:             getEnv("UITRACK_ENV", "development"),
			ShutdownTimeout: getDurationEnv("UITRACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("UITRACK_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("UITRACK_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("UITRACK_CLICKHOUSE_DB", "uitrack"),
			Username: getEnv("UITRACK_CLICKHOUSE_USER", "default"),
			Password: getEnv("UITRACK_CLICKHOUSE_PASSWORD", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("UITRACK_DB_HOST", "localhost"),
			Port:     getIntEnv("UITRACK_DB_PORT", 5432),
			User:     getEnv("UITRACK_DB_USER", "uitrack"),
			Password: getEnv("UITRACK_DB_PASSWORD", "uitrack_secret"),
			DBName:   getEnv("UITRACK_DB_NAME", "uitrack"),
			SSLMode:  getEnv("UITRACK_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("UITRACK_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("UITRACK_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("UITRACK_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("UITRACK_REDIS_PASSWORD", ""),
			DB:       getIntEnv("UITRACK_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("UITRACK_AUTH_ENABLED", true),
			MasterKey: getEnv("UITRACK_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("UITRACK_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/components/track"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getBoolEnv("UITRACK_RATE_LIMIT_ENABLED", true),
			RPS:          getFloatEnv("UITRACK_RATE_LIMIT_RPS", 100),
			Burst:        getIntEnv("UITRACK_RATE_LIMIT_BURST", 50),
			WindowBudget: getIntEnv("UITRACK_RATE_LIMIT_WINDOW_BUDGET", 300),
			Window:       getDurationEnv("UITRACK_RATE_LIMIT_WINDOW", time.Minute),
		},
		Export: ExportConfig{
			Dir:         getEnv("UITRACK_EXPORT_DIR", ""),
			MaxRecords:  getIntEnv("UITRACK_EXPORT_MAX_RECORDS", 10000),
			GracePeriod: getDurationEnv("UITRACK_EXPORT_GRACE_PERIOD", 5*time.Second),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("UITRACK_GEO_ENABLED", false),
			DatabasePath: getEnv("UITRACK_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
		},
		Log: LogConfig{
			Level:  getEnv("UITRACK_LOG_LEVEL", "info"),
			Format: getEnv("UITRACK_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("UITRACK_METRICS_ENABLED", true),
			Path:    getEnv("UITRACK_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("UITRACK_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Export.MaxRecords <= 0 {
		return fmt.Errorf("UITRACK_EXPORT_MAX_RECORDS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
