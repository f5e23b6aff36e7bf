package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromPath(t *testing.T) {
	fs := NewMockFileSystem()
	fs.Files["/home/test/.nicefox/config.yaml"] = []byte(`
version: "1"
database:
  path: ~/graphs/main.db
  wal: true
  foreign_keys: true
  busy_timeout_ms: 2500
log:
  level: debug
`)
	cfg, err := LoadFromPath("/home/test/.nicefox/config.yaml", fs)
	require.NoError(t, err)
	require.Equal(t, "~/graphs/main.db", cfg.Database.Path)
	require.True(t, cfg.Database.WAL)
	require.Equal(t, 2500, cfg.Database.BusyTimeoutMS)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	loader := NewLoader(NewMockFileSystem())
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, Default().Database.Path, cfg.Database.Path)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	fs := NewMockFileSystem()
	fs.Files["/c.yaml"] = []byte("database:\n  path: \"\"\n")
	_, err := LoadFromPath("/c.yaml", fs)
	require.Error(t, err)

	fs.Files["/c2.yaml"] = []byte("database:\n  path: /x.db\nlog:\n  level: loud\n")
	_, err = LoadFromPath("/c2.yaml", fs)
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	fs := NewMockFileSystem()
	fs.Files["/bad.yaml"] = []byte("database: [not a map")
	_, err := LoadFromPath("/bad.yaml", fs)
	require.Error(t, err)
}
