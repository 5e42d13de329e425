// Package config loads and persists steward configuration. Sources are
// merged in precedence order: defaults, the user config file, then
// STEWARD_* environment variables.
package config

import "time"

// Config represents the steward configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Server    ServerConfig    `mapstructure:"server" toml:"server"`
	Jobs      JobsConfig      `mapstructure:"jobs" toml:"jobs"`
	Anthropic AnthropicConfig `mapstructure:"anthropic" toml:"anthropic"`
	Log       LogConfig       `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite ledger
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// ServerConfig configures the admin HTTP server
type ServerConfig struct {
	Port int `mapstructure:"port" toml:"port"`
}

// JobsConfig configures the job definition source
type JobsConfig struct {
	Dir   string `mapstructure:"dir" toml:"dir"`     // directory of job documents
	Watch bool   `mapstructure:"watch" toml:"watch"` // reload on file changes

	RunTimeoutMinutes int `mapstructure:"run_timeout_minutes" toml:"run_timeout_minutes"` // wall-clock limit per run
}

// RunTimeout returns the per-run wall-clock limit
func (j JobsConfig) RunTimeout() time.Duration {
	return time.Duration(j.RunTimeoutMinutes) * time.Minute
}

// AnthropicConfig configures the completion service. An empty APIKey
// switches execution to simulation mode.
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key" toml:"api_key"`
	Model       string  `mapstructure:"model" toml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" toml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" toml:"temperature"`
}

// LogConfig configures logger output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"` // structured JSON instead of console output
}
