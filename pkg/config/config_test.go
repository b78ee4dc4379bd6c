package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 1863, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Server.MaxConnections)
	assert.Equal(t, 60*time.Second, cfg.Protocol.PingInterval)
	assert.Equal(t, 3600*time.Second, cfg.Protocol.SessionTimeout)
	assert.Equal(t, 90*time.Second, cfg.Protocol.IdleTimeout)
	assert.Equal(t, 1664, cfg.Protocol.MaxMessageLength)
	assert.Equal(t, 3, cfg.Protocol.AuthRetries)
	assert.Equal(t, "MSNP21", cfg.Protocol.SupportedVersions[0])

	require.NoError(t, Validate(cfg))
}

func TestSessionTimeoutFloor(t *testing.T) {
	cfg := &Config{}
	cfg.Protocol.SessionTimeout = 10 * time.Second
	ApplyDefaults(cfg)

	assert.Equal(t, MinSessionTimeout, cfg.Protocol.SessionTimeout)
}

func TestValidateRejectsUnknownDialect(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Protocol.SupportedVersions = []string{"MSNP99"}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MSNP99")
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"

	assert.Error(t, Validate(cfg))
}

func TestValidateAPIRequiresSecret(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Enabled = true
	ApplyDefaults(cfg)

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	cfg.API.JWTSecret = "topsecret"
	assert.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := []byte(`
logging:
  level: debug
server:
  port: 11863
protocol:
  ping_interval: 30s
  session_timeout: 120s
database:
  type: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "msnpd.db") + `
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 11863, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Protocol.PingInterval)
	assert.Equal(t, 120*time.Second, cfg.Protocol.SessionTimeout)
	// Unset fields still pick up defaults.
	assert.Equal(t, 1000, cfg.Server.MaxConnections)
	assert.Equal(t, 1664, cfg.Protocol.MaxMessageLength)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1863, cfg.Server.Port)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.Port = 2863
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2863, loaded.Server.Port)
}
