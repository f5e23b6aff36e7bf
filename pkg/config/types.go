package config

// Config is the main configuration file at ~/.nicefox/config.yaml
type Config struct {
	Version  string         `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// DatabaseConfig configures the SQLite store backing the graph
type DatabaseConfig struct {
	Path string `yaml:"path"` // Database file path (tilde expanded)

	// Connection pragmas
	WAL           bool `yaml:"wal"`             // Enable WAL journal mode
	ForeignKeys   bool `yaml:"foreign_keys"`    // Enforce foreign keys
	BusyTimeoutMS int  `yaml:"busy_timeout_ms"` // SQLITE_BUSY wait, milliseconds

	// Connection pool
	MaxOpenConns int `yaml:"max_open_conns,omitempty"`
	MaxIdleConns int `yaml:"max_idle_conns,omitempty"`
}

// LogConfig configures structured logging for the CLI host
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // "debug", "info", "warn", "error"
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	return &Config{
		Version: "1",
		Database: DatabaseConfig{
			Path:          "~/.nicefox/graph.db",
			WAL:           true,
			ForeignKeys:   true,
			BusyTimeoutMS: 5000,
			MaxOpenConns:  5,
			MaxIdleConns:  2,
		},
		Log: LogConfig{Level: "info"},
	}
}
