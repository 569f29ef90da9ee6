// Package config loads the hub configuration. Sources are layered:
// built-in defaults, then an optional JSON file, then FASTBOT_* environment
// variables. The merged result is validated before use.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/c360/fastbot/errors"
)

const envPrefix = "FASTBOT"

var validate = validator.New()

// Config is the complete hub configuration.
type Config struct {
	// ListenAddr is the HTTP bind address for the WebSocket endpoint and
	// the metrics handler.
	ListenAddr string `json:"listen_addr" envconfig:"LISTEN_ADDR" validate:"required,hostname_port"`
	// WSPath is the URL path bot backends connect to.
	WSPath string `json:"ws_path" envconfig:"WS_PATH" validate:"required,startswith=/"`
	// MetricsPath serves the prometheus scrape endpoint; empty disables it.
	MetricsPath string `json:"metrics_path" envconfig:"METRICS_PATH" validate:"omitempty,startswith=/"`
	// AccessToken, when set, is the shared secret required on every
	// handshake.
	AccessToken string `json:"access_token" envconfig:"ACCESS_TOKEN"`

	// PluginPaths lists .so files or directories to load plugins from.
	PluginPaths []string `json:"plugin_paths" envconfig:"PLUGIN_PATHS"`

	// ReadLimit bounds one inbound frame in bytes; 0 means no limit.
	ReadLimit int64 `json:"read_limit" envconfig:"READ_LIMIT" validate:"min=0"`
	// DispatchWorkers and DispatchQueue size the event dispatch pool.
	DispatchWorkers int `json:"dispatch_workers" envconfig:"DISPATCH_WORKERS" validate:"min=0,max=1024"`
	DispatchQueue   int `json:"dispatch_queue" envconfig:"DISPATCH_QUEUE" validate:"min=0,max=1048576"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"min=0"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	// LogJSON switches the log handler to JSON output.
	LogJSON bool `json:"log_json" envconfig:"LOG_JSON"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		ListenAddr:      "0.0.0.0:8080",
		WSPath:          "/onebot/v11/ws",
		MetricsPath:     "/metrics",
		ReadLimit:       4 << 20,
		DispatchWorkers: 8,
		DispatchQueue:   1024,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// Load builds the configuration. path may be empty to skip the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.WrapInvalid(err, "Config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.WrapInvalid(err, "Config", "Load", "parse config file")
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, errors.WrapInvalid(err, "Config", "Load", "process environment")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "validate config")
	}
	return nil
}
