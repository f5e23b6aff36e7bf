package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultConfigPath returns ~/.nicefox/config.yaml
func DefaultConfigPath(fs FileSystem) (string, error) {
	home, err := fs.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".nicefox", "config.yaml"), nil
}

// ExpandPath expands a leading tilde and normalizes the path
func ExpandPath(path string, fs FileSystem) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := fs.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	abs, err := fs.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// DatabasePath resolves the configured database path
func (c *Config) DatabasePath(fs FileSystem) (string, error) {
	return ExpandPath(c.Database.Path, fs)
}
