// Package server provides configuration loading that defines runtime
// defaults, validation, and rate-limiting parameters for the relay.
package server

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig defines the parameters for per-connection event rate
// limiting.
type RateLimitConfig struct {
	Burst          int           `envconfig:"RATE_LIMIT_BURST" default:"20"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
}

// Config holds the relay configuration. BACKEND_SERVER is the only required
// setting; everything else carries a default matching the original
// deployment.
type Config struct {
	Port           string   `envconfig:"PORT" default:"3001"`
	BackendServer  string   `envconfig:"BACKEND_SERVER" required:"true"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	StaticDir      string   `envconfig:"STATIC_DIR"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`

	BackendTimeout  time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	RateLimit RateLimitConfig
}

// NewConfigFromEnv loads the configuration from environment variables.
// It fails when BACKEND_SERVER is unset, which is startup-fatal for the
// relay: without the upstream store there is nothing to proxy.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	// envconfig accepts a present-but-empty value for required keys.
	if strings.TrimSpace(cfg.BackendServer) == "" {
		return nil, errors.New("required key BACKEND_SERVER missing value")
	}
	sanitizeConfig(&cfg)
	return &cfg, nil
}

// NewConfig returns a configuration with defaults suitable for tests, with
// the backend pointed at the given base URL.
func NewConfig(backendServer string) *Config {
	cfg := &Config{
		Port:            "3001",
		BackendServer:   backendServer,
		AllowedOrigins:  []string{"*"},
		MaxMessageSize:  4096,
		BackendTimeout:  10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
	}
	sanitizeConfig(cfg)
	return cfg
}

func sanitizeConfig(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "3001"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 10 * time.Second
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
