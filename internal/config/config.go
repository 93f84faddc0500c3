// Package config loads SDK and collector configuration.
// Values come from environment variables and may be overlaid by a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/penshort/beacon/internal/model"
)

// ErrUnsupportedFormat is returned by LoadFile for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

// SDK holds the configuration of one SDK instance.
type SDK struct {
	// Identity
	AppKey    string `env:"BEACON_APP_KEY,required" yaml:"app_key"`
	URL       string `env:"BEACON_URL,required" yaml:"url"`
	Namespace string `env:"BEACON_NAMESPACE" yaml:"namespace"`
	DeviceID  string `env:"BEACON_DEVICE_ID" yaml:"device_id"`

	// Shared secret for checksum256. Empty disables checksums.
	Salt string `env:"BEACON_SALT" yaml:"salt"`

	// Persistence
	Storage    string `env:"BEACON_STORAGE" envDefault:"memory" yaml:"storage"`
	RedisURL   string `env:"BEACON_REDIS_URL" yaml:"redis_url"`
	SQLitePath string `env:"BEACON_SQLITE_PATH" envDefault:"beacon.db" yaml:"sqlite_path"`

	// Timers
	HeartbeatInterval time.Duration `env:"BEACON_HEARTBEAT_INTERVAL" envDefault:"500ms" yaml:"heartbeat_interval"`
	SessionUpdate     time.Duration `env:"BEACON_SESSION_UPDATE" envDefault:"60s" yaml:"session_update"`
	FailTimeout       time.Duration `env:"BEACON_FAIL_TIMEOUT" envDefault:"60s" yaml:"fail_timeout"`
	MaxBackoff        time.Duration `env:"BEACON_MAX_BACKOFF" envDefault:"10m" yaml:"max_backoff"`
	RequestTimeout    time.Duration `env:"BEACON_REQUEST_TIMEOUT" envDefault:"30s" yaml:"request_timeout"`

	// Delivery. MaxAttempts of zero retries forever.
	MaxAttempts int `env:"BEACON_MAX_ATTEMPTS" envDefault:"0" yaml:"max_attempts"`
	HistorySize int `env:"BEACON_HISTORY_SIZE" envDefault:"100" yaml:"history_size"`

	// Queue bounds
	QueueSize           int `env:"BEACON_QUEUE_SIZE" envDefault:"1000" yaml:"queue_size"`
	EventQueueSize      int `env:"BEACON_EVENT_QUEUE_SIZE" envDefault:"1000" yaml:"event_queue_size"`
	MaxEventsPerRequest int `env:"BEACON_MAX_EVENTS" envDefault:"100" yaml:"max_events"`

	// Record limits
	MaxKeyLength          int `env:"BEACON_MAX_KEY_LENGTH" envDefault:"128" yaml:"max_key_length"`
	MaxValueSize          int `env:"BEACON_MAX_VALUE_SIZE" envDefault:"256" yaml:"max_value_size"`
	MaxSegmentationValues int `env:"BEACON_MAX_SEGMENTATION_VALUES" envDefault:"100" yaml:"max_segmentation_values"`
	MaxBreadcrumbCount    int `env:"BEACON_MAX_BREADCRUMB_COUNT" envDefault:"100" yaml:"max_breadcrumb_count"`

	// Modes
	RequireConsent bool   `env:"BEACON_REQUIRE_CONSENT" envDefault:"false" yaml:"require_consent"`
	OfflineMode    bool   `env:"BEACON_OFFLINE_MODE" envDefault:"false" yaml:"offline_mode"`
	Orientation    string `env:"BEACON_ORIENTATION" envDefault:"landscape" yaml:"orientation"`

	// Journey content
	ContentRetryDelay  time.Duration `env:"BEACON_CONTENT_RETRY_DELAY" envDefault:"1s" yaml:"content_retry_delay"`
	ContentMaxAttempts int           `env:"BEACON_CONTENT_MAX_ATTEMPTS" envDefault:"3" yaml:"content_max_attempts"`

	// Behavior settings supplied locally. Remote settings merge over these.
	Behavior model.BehaviorSettings `yaml:"behavior"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" yaml:"log_format"`
}

// StoragePrefix returns the namespace used for persisted keys.
func (c *SDK) StoragePrefix() string {
	if c.Namespace != "" {
		return c.Namespace
	}
	return c.AppKey
}

// Validate checks the fields that have no usable default.
func (c *SDK) Validate() error {
	if c.AppKey == "" {
		return errors.New("app key is required")
	}
	if c.URL == "" {
		return errors.New("url is required")
	}
	switch c.Storage {
	case StorageMemory, StorageSQLite:
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("redis storage requires a redis url")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	return nil
}

// Load parses environment variables into an SDK config.
func Load() (*SDK, error) {
	cfg := &SDK{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadWithFile parses the environment and then overlays the file at path
// when one is given. The required fields may come from either source.
func LoadWithFile(path string) (*SDK, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	var placeholders []string
	for _, k := range []string{"BEACON_APP_KEY", "BEACON_URL"} {
		if environ[k] == "" {
			environ[k] = "-"
			placeholders = append(placeholders, k)
		}
	}

	cfg := &SDK{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for _, k := range placeholders {
		switch k {
		case "BEACON_APP_KEY":
			cfg.AppKey = ""
		case "BEACON_URL":
			cfg.URL = ""
		}
	}

	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Defaults returns an SDK config with every default applied and no
// environment lookups. Callers fill in AppKey and URL.
func Defaults() *SDK {
	cfg := &SDK{}
	// Parsing an empty environment only fails on the required fields.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{
		"BEACON_APP_KEY": "-",
		"BEACON_URL":     "-",
	}})
	cfg.AppKey = ""
	cfg.URL = ""
	return cfg
}

// LoadFile overlays the YAML or JSON file at path onto cfg. Keys missing
// from the file keep their current values.
func LoadFile(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		// JSON documents are valid YAML flow documents.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}
