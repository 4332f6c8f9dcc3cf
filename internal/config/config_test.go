package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UITRACK_API_KEY_MASTER", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Export.MaxRecords != 10000 {
		t.Errorf("export max records = %d, want 10000", cfg.Export.MaxRecords)
	}
	if cfg.Export.GracePeriod != 5*time.Second {
		t.Errorf("export grace = %v, want 5s", cfg.Export.GracePeriod)
	}
	if !cfg.IsDevelopment() {
		t.Error("default env should be development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UITRACK_API_KEY_MASTER", "test-key")
	t.Setenv("UITRACK_HTTP_ADDR", ":9999")
	t.Setenv("UITRACK_RATE_LIMIT_RPS", "250.5")
	t.Setenv("UITRACK_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("UITRACK_AUTH_SKIP_PATHS", "/health, /metrics")
	t.Setenv("UITRACK_CLICKHOUSE_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.RateLimit.RPS != 250.5 {
		t.Errorf("rps = %v", cfg.RateLimit.RPS)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("window = %v", cfg.RateLimit.Window)
	}
	if len(cfg.Auth.SkipPaths) != 2 || cfg.Auth.SkipPaths[1] != "/metrics" {
		t.Errorf("skip paths = %v", cfg.Auth.SkipPaths)
	}
	if !cfg.ClickHouse.Enabled {
		t.Error("clickhouse should be enabled")
	}
}

func TestValidateRequiresMasterKey(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.Enabled = true
	cfg.Export.MaxRecords = 100

	if err := cfg.Validate(); err == nil {
		t.Error("expected error when auth enabled without master key")
	}

	cfg.Auth.MasterKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateExportCap(t *testing.T) {
	cfg := &Config{}
	cfg.Export.MaxRecords = 0

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive export cap")
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p",
		DBName: "tracking", SSLMode: "disable",
	}
	want := "postgres://u:p@db:5433/tracking?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}
}

func TestEnvHelperFallbacks(t *testing.T) {
	t.Setenv("UITRACK_TEST_INT", "not-a-number")
	if got := getIntEnv("UITRACK_TEST_INT", 42); got != 42 {
		t.Errorf("bad int should fall back, got %d", got)
	}

	t.Setenv("UITRACK_TEST_BOOL", "yes-please")
	if got := getBoolEnv("UITRACK_TEST_BOOL", true); got != true {
		t.Errorf("bad bool should fall back, got %v", got)
	}

	t.Setenv("UITRACK_TEST_DUR", "soon")
	if got := getDurationEnv("UITRACK_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("bad duration should fall back, got %v", got)
	}
}
