package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Environment variables that override file values.
const (
	EnvURL    = "RTDB_URL"
	EnvSecret = "RTDB_SECRET"
	// EnvRuntimeMode set to "mock" forces the in-process mock over any URL
	// taken from the file or RTDB_URL.
	EnvRuntimeMode = "RTDB_RUNTIME_MODE"
)

// MockMode reports whether the environment forces the in-process mock.
func MockMode() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(EnvRuntimeMode)), "mock")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing. An empty path yields Default().
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		applyEnv(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Retry.Jitter == 0 {
		cfg.Retry.Jitter = time.Second
	}
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = 60 * time.Second
	}
	if cfg.Transport.Concurrency == 0 {
		cfg.Transport.Concurrency = 16
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Sandbox.Addr == "" {
		cfg.Sandbox.Addr = ":8787"
	}
}

// applyEnv lets the environment fill values the file left empty.
func applyEnv(cfg *Config) {
	if cfg.Database.URL == "" {
		cfg.Database.URL = strings.TrimSpace(os.Getenv(EnvURL))
	}
	if cfg.Database.Secret == "" {
		cfg.Database.Secret = os.Getenv(EnvSecret)
	}
}
