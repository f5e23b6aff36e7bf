package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherSeesModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\n"), 0644))

	w, err := NewFsnotifyWatcher()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(path))
	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\n"), 0644))

	select {
	case ev := <-w.Events():
		require.Equal(t, "modified", ev.Operation)
	case <-time.After(3 * time.Second):
		t.Fatal("no watch event within timeout")
	}
}

func TestWatchIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x: 1\n"), 0644))

	w, err := NewFsnotifyWatcher()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch(path))
	require.NoError(t, w.Watch(path))
	require.NoError(t, w.Unwatch(path))
	require.NoError(t, w.Unwatch(path))
}
