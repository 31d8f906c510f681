package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, uint16(DefaultPort), cfg.Hyperspace.Port)
	assert.Equal(t, DefaultLeaseInterval, cfg.Hyperspace.LeaseInterval)
	assert.Equal(t, DefaultKeepAliveInterval, cfg.Hyperspace.KeepAliveInterval)
	assert.Equal(t, DefaultAPIListen, cfg.API.Listen)
	assert.False(t, cfg.Hyperspace.SyncNotify)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
logging:
  level: debug
  format: json
hyperspace:
  dir: /var/lib/hyperspace
  port: 40000
  lease_interval: 30s
  keepalive_interval: 5s
  sync_notify: true
api:
  enabled: true
  listen: 0.0.0.0:9000
metrics:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/hyperspace", cfg.Hyperspace.Dir)
	assert.Equal(t, uint16(40000), cfg.Hyperspace.Port)
	assert.Equal(t, 30*time.Second, cfg.Hyperspace.LeaseInterval)
	assert.Equal(t, 5*time.Second, cfg.Hyperspace.KeepAliveInterval)
	assert.True(t, cfg.Hyperspace.SyncNotify)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Listen)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadIntervalMilliseconds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	// Bare integers are milliseconds, matching the wire protocol units.
	yaml := `
hyperspace:
  dir: /tmp/hs
  lease_interval: 12000
  keepalive_interval: 3000
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Hyperspace.LeaseInterval)
	assert.Equal(t, 3*time.Second, cfg.Hyperspace.KeepAliveInterval)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hyperspace:\n  dir: /from/file\n"), 0644))

	t.Setenv("HYPERSPACE_LOGGING_LEVEL", "ERROR")
	t.Setenv("HYPERSPACE_HYPERSPACE_DIR", "/from/env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, "/from/env", cfg.Hyperspace.Dir)
}

func TestValidationFailures(t *testing.T) {
	cfg := GetDefaultConfig()
	// Missing dir.
	assert.Error(t, Validate(cfg))

	cfg.Hyperspace.Dir = "/ok"
	assert.NoError(t, Validate(cfg))

	cfg.Logging.Level = "NOISY"
	assert.Error(t, Validate(cfg))

	cfg.Logging.Level = "INFO"
	cfg.Hyperspace.LeaseInterval = -time.Second
	assert.Error(t, Validate(cfg))
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Hyperspace.Dir = "/saved"
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/saved", loaded.Hyperspace.Dir)
	assert.Equal(t, cfg.Hyperspace.Port, loaded.Hyperspace.Port)
}
