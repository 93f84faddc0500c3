package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Collector holds the development collector configuration.
type Collector struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Optional Postgres. Requests are kept in memory when empty.
	DatabaseURL string `env:"DATABASE_URL"`

	// Shared salt for checksum256 verification. Empty accepts any request.
	Salt string `env:"COLLECTOR_SALT"`

	// YAML file with behavior settings and content served to SDKs.
	SettingsFile string `env:"COLLECTOR_SETTINGS_FILE"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Comma-separated list of origins allowed to post from a browser.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Collector) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c *Collector) AllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	var out []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o := strings.TrimSpace(origin); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// LoadCollector parses environment variables into a Collector config.
func LoadCollector() (*Collector, error) {
	cfg := &Collector{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse collector config: %w", err)
	}
	return cfg, nil
}
