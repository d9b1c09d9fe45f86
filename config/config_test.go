package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Login.MaxFailures)
	assert.Equal(t, 15*time.Minute, cfg.Login.Window)
	assert.True(t, cfg.Sync.AutoCreateUsers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: A YAML file setting the port and db path, and an env override for the port
	// WHEN: Loading
	// THEN: The env var wins over the file, the file wins over defaults
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  path: memory
lifecycle:
  interval: 30s
`), 0o600))
	t.Setenv("REWARDS_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Lifecycle.Interval)
}

func TestValidate_BadKeyLength(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REWARDS_PAYMENTS_ENCRYPTION_KEY", "abcd")

	_, err := Load("")
	assert.ErrorContains(t, err, "encryption_key")
}
