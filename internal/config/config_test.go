package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_WithRequiredVars(t *testing.T) {
	t.Setenv("BEACON_APP_KEY", "app-123")
	t.Setenv("BEACON_URL", "https://collector.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.AppKey != "app-123" {
		t.Errorf("expected AppKey app-123, got %s", cfg.AppKey)
	}
	if cfg.StoragePrefix() != "app-123" {
		t.Errorf("expected storage prefix to fall back to app key, got %s", cfg.StoragePrefix())
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("BEACON_APP_KEY")
	os.Unsetenv("BEACON_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing required vars, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BEACON_APP_KEY", "app")
	t.Setenv("BEACON_URL", "http://localhost")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.HeartbeatInterval != 500*time.Millisecond {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
	if cfg.FailTimeout != 60*time.Second {
		t.Errorf("FailTimeout = %v", cfg.FailTimeout)
	}
	if cfg.MaxEventsPerRequest != 100 {
		t.Errorf("MaxEventsPerRequest = %d", cfg.MaxEventsPerRequest)
	}
	if cfg.ContentMaxAttempts != 3 || cfg.ContentRetryDelay != time.Second {
		t.Errorf("content retry = %d x %v", cfg.ContentMaxAttempts, cfg.ContentRetryDelay)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Storage = %s", cfg.Storage)
	}
}

func TestDefaults_MatchesEnvDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.AppKey != "" || cfg.URL != "" {
		t.Fatal("Defaults must leave identity empty")
	}
	if cfg.QueueSize != 1000 || cfg.MaxKeyLength != 128 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestSDK_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SDK)
		wantErr bool
	}{
		{"valid", func(*SDK) {}, false},
		{"missing app key", func(c *SDK) { c.AppKey = "" }, true},
		{"missing url", func(c *SDK) { c.URL = "" }, true},
		{"redis without url", func(c *SDK) { c.Storage = StorageRedis }, true},
		{"unknown storage", func(c *SDK) { c.Storage = "etcd" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.AppKey = "app"
			cfg.URL = "http://localhost"
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	content := `
app_key: from-file
max_events: 10
behavior:
  eb: [blocked]
  esw:
    purchase: [keep]
  jte: [checkout]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	cfg.URL = "http://localhost"
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.AppKey != "from-file" {
		t.Errorf("AppKey = %s", cfg.AppKey)
	}
	if cfg.MaxEventsPerRequest != 10 {
		t.Errorf("MaxEventsPerRequest = %d", cfg.MaxEventsPerRequest)
	}
	if cfg.MaxKeyLength != 128 {
		t.Errorf("MaxKeyLength overwritten: %d", cfg.MaxKeyLength)
	}
	if cfg.URL != "http://localhost" {
		t.Errorf("URL overwritten: %s", cfg.URL)
	}
	if len(cfg.Behavior.EventBlacklist) != 1 || cfg.Behavior.EventBlacklist[0] != "blocked" {
		t.Errorf("eb = %v", cfg.Behavior.EventBlacklist)
	}
	if got := cfg.Behavior.EventSegmentationWhitelist["purchase"]; len(got) != 1 || got[0] != "keep" {
		t.Errorf("esw = %v", cfg.Behavior.EventSegmentationWhitelist)
	}
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.json")
	if err := os.WriteFile(path, []byte(`{"salt": "s3cret", "behavior": {"sb": ["secret"]}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Salt != "s3cret" || len(cfg.Behavior.SegmentationBlacklist) != 1 {
		t.Fatalf("unexpected config: salt=%q sb=%v", cfg.Salt, cfg.Behavior.SegmentationBlacklist)
	}
}

func TestLoadFile_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadFile(path, Defaults()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadCollector_Defaults(t *testing.T) {
	cfg, err := LoadCollector()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.AppPort != 8080 {
		t.Errorf("expected default AppPort 8080, got %d", cfg.AppPort)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development by default")
	}
}

func TestCollector_AllowedOrigins(t *testing.T) {
	cfg := &Collector{CORSAllowedOrigins: " https://a.example , ,https://b.example"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins() = %v", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("json output = %q", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
}

func TestLoadWithFile_RequiredFromFile(t *testing.T) {
	t.Setenv("BEACON_APP_KEY", "")
	t.Setenv("BEACON_URL", "")
	t.Setenv("BEACON_MAX_EVENTS", "7")

	path := filepath.Join(t.TempDir(), "beacon.yml")
	if err := os.WriteFile(path, []byte("app_key: file-key\nurl: http://collector.local\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile: %v", err)
	}
	if cfg.AppKey != "file-key" || cfg.URL != "http://collector.local" {
		t.Errorf("required fields = %q, %q", cfg.AppKey, cfg.URL)
	}
	if cfg.MaxEventsPerRequest != 7 {
		t.Errorf("env value lost: MaxEventsPerRequest = %d", cfg.MaxEventsPerRequest)
	}

	if _, err := LoadWithFile(""); err == nil {
		t.Error("LoadWithFile without app key should fail validation")
	}
}
