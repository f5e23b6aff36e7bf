package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// LoadFromPath loads config from a specific path using the provided FileSystem
func LoadFromPath(path string, fs FileSystem) (*Config, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for values the host cannot run with
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path not specified in config")
	}
	if c.Database.BusyTimeoutMS < 0 {
		return fmt.Errorf("database.busy_timeout_ms cannot be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// Load loads the configuration from the default location, falling back to
// defaults when no file exists
func (l *Loader) Load() (*Config, error) {
	path, err := DefaultConfigPath(l.fs)
	if err != nil {
		return nil, err
	}
	if _, err := l.fs.Stat(path); err != nil {
		return Default(), nil
	}
	return l.LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func (l *Loader) LoadFromPath(path string) (*Config, error) {
	return LoadFromPath(path, l.fs)
}
