package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/stewardhq/steward/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// DefaultPath returns ~/.config/steward/config.toml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "steward", "config.toml")
}

// Load reads the configuration, caching the result
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path, bypassing
// the cache and environment merging
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}
	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("STEWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Sensitive values come from the environment, never the file
	v.BindEnv("anthropic.api_key", "STEWARD_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	setDefaults(v)

	if path := DefaultPath(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		// A missing config file is fine; defaults and env carry the load
		_ = v.ReadInConfig()
	}

	viperInstance = v
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "steward.db")
	v.SetDefault("server.port", 8484)

	v.SetDefault("jobs.dir", "jobs")
	v.SetDefault("jobs.watch", true)
	v.SetDefault("jobs.run_timeout_minutes", 10)

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.2) // Deterministic

	v.SetDefault("log.json", false)
}
