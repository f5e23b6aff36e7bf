package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPath(t *testing.T) {
	fs := NewMockFileSystem()
	path, err := DefaultConfigPath(fs)
	require.NoError(t, err)
	require.Equal(t, "/home/test/.nicefox/config.yaml", path)
}

func TestExpandPathTilde(t *testing.T) {
	fs := NewMockFileSystem()
	path, err := ExpandPath("~/graphs/main.db", fs)
	require.NoError(t, err)
	require.Equal(t, "/home/test/graphs/main.db", path)
}

func TestExpandPathAbsolute(t *testing.T) {
	fs := NewMockFileSystem()
	path, err := ExpandPath("/var/lib/nicefox/g.db", fs)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/nicefox/g.db", path)
}

func TestDatabasePath(t *testing.T) {
	fs := NewMockFileSystem()
	cfg := Default()
	path, err := cfg.DatabasePath(fs)
	require.NoError(t, err)
	require.Equal(t, "/home/test/.nicefox/graph.db", path)
}
