package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "PUBLIC_DIR", "LOG_USER", "LOG_PASSWORD", "DATA_DIR", "LOG_DIR",
		"LOG_LEVEL", "LOG_MAX_FILES", "APP_ENV", "CHROME_PATH", "NO_SANDBOX",
		"AUTO_DOWNLOAD", "MAX_SESSIONS", "FETCH_CONCURRENCY", "SCROLL_DELAY",
		"SETTLE_DELAY", "NAVIGATION_TIMEOUT", "NORMALIZED_WIDTH", "PAGE_ORDER",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_TTL", "MINIO_ENDPOINT",
		"MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_REGION",
		"MINIO_USE_SSL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "3000" || cfg.Capture.MaxSessions != 2 || cfg.Capture.NormalizedWidth != 2400 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Production() {
		t.Error("default env is production")
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "viewcapture.yaml")
	os.WriteFile(yamlPath, []byte(`
server:
  port: "8080"
capture:
  max_sessions: 5
  scroll_delay: 750ms
  page_order: true
redis:
  addr: redis:6379
`), 0o644)

	envPath := filepath.Join(dir, ".env")
	os.WriteFile(envPath, []byte("MAX_SESSIONS=7\nAPP_ENV=production\n"), 0o644)

	t.Setenv("PORT", "9090")
	t.Setenv("SETTLE_DELAY", "1500")

	cfg, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, want env value 9090", cfg.Server.Port)
	}
	if cfg.Capture.MaxSessions != 7 {
		t.Errorf("MaxSessions = %d, want .env value 7", cfg.Capture.MaxSessions)
	}
	if cfg.Capture.ScrollDelay != 750*time.Millisecond {
		t.Errorf("ScrollDelay = %v, want yaml value", cfg.Capture.ScrollDelay)
	}
	if cfg.Capture.SettleDelay != 1500*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 1.5s", cfg.Capture.SettleDelay)
	}
	if !cfg.Capture.PageOrder || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("yaml values lost: %+v", cfg)
	}
	if !cfg.Production() {
		t.Error("APP_ENV from .env not applied")
	}
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoad_UnknownYAMLField(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("capture:\n  max_sesions: 3\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a misspelled field")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"port", "PORT", "http", "invalid port"},
		{"sessions", "MAX_SESSIONS", "0", "max_sessions"},
		{"number", "FETCH_CONCURRENCY", "four", "FETCH_CONCURRENCY"},
		{"bool", "NO_SANDBOX", "maybe", "NO_SANDBOX"},
		{"level", "LOG_LEVEL", "loud", "log level"},
		{"credentials", "LOG_USER", "admin", "log_user and log_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
