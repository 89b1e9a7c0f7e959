// Package config loads CLI and sandbox settings from YAML.
package config

import "time"

// Config is the top-level configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Retry     RetryConfig     `yaml:"retry"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
}

// DatabaseConfig identifies the database.
type DatabaseConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// RetryConfig tunes the generation loop.
type RetryConfig struct {
	MaxGenerations *int          `yaml:"max_generations"` // nil = default
	BaseDelay      time.Duration `yaml:"base_delay"`
	Jitter         time.Duration `yaml:"jitter"`
}

// TransportConfig tunes the HTTP client.
type TransportConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	RateLimit   float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst       int           `yaml:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SandboxConfig holds settings for the local mock server.
type SandboxConfig struct {
	Addr    string        `yaml:"addr"`
	Seed    string        `yaml:"seed"`
	Secret  string        `yaml:"secret"`
	Latency time.Duration `yaml:"latency"`
	Fail    string        `yaml:"fail"` // rate=<float>,code=<status>
}
