package core

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumin-project/lumin/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEnsureDeviceUUID_LeavesExistingUUIDAlone(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{UUID: "already-set"}}
	require.NoError(t, ensureDeviceUUID(cfg, "", testLogger()))
	assert.Equal(t, "already-set", cfg.Server.UUID)
}

func TestEnsureDeviceUUID_GeneratesWhenEmptyNoConfigPath(t *testing.T) {
	cfg := &config.Config{}
	require.NoError(t, ensureDeviceUUID(cfg, "", testLogger()))
	assert.NotEmpty(t, cfg.Server.UUID)
}

func TestEnsureDeviceUUID_PersistsToConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\nnetwork:\n  interface: auto\n"), 0644))

	cfg := &config.Config{}
	cfg.Server.Port = 9090
	require.NoError(t, ensureDeviceUUID(cfg, path, testLogger()))
	assert.NotEmpty(t, cfg.Server.UUID)

	reloaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.UUID, reloaded.Server.UUID)
	assert.Equal(t, 9090, reloaded.Server.Port)
}

func TestEnsureDeviceUUID_PersistsToNewConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := &config.Config{}
	require.NoError(t, ensureDeviceUUID(cfg, path, testLogger()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), cfg.Server.UUID)
}
