package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := `
server:
  host: 0.0.0.0
  port: 9090
storage:
  db_name: mine.db
prices:
  requests_per_second: 5
  cooldown_seconds: 30
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, "mine.db", cfg.Storage.DBName)
	assert.Equal(t, 5.0, cfg.Prices.RequestsPerSecond)
	assert.Equal(t, 30*time.Second, Seconds(cfg.Prices.CooldownSeconds))
	assert.Equal(t, 3, cfg.Prices.FailThreshold, "unset values get defaults")
	assert.Equal(t, 300, cfg.Reports.CacheTTLSeconds)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 7, cfg.Log.RetentionDays)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr())
	assert.Equal(t, defaultDBName, cfg.Storage.DBName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COSTBASIS_PORT", "7001")
	t.Setenv("COSTBASIS_PRICE_RPS", "0.5")
	t.Setenv("COSTBASIS_LOG_LEVEL", "warn")
	t.Setenv("COSTBASIS_PRICE_CACHE_TTL", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Prices.RequestsPerSecond)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Prices.CacheTTLSeconds)
}

func TestDataDirResolution(t *testing.T) {
	SetRuntimeDataDir("")
	defer SetRuntimeDataDir("")

	configured := filepath.Join(t.TempDir(), "configured")
	cfg := &Config{Storage: StorageConfig{DataDir: configured, DBName: "x.db"}}

	dir, err := cfg.GetDataDir()
	require.NoError(t, err)
	assert.Equal(t, configured, dir)
	assert.DirExists(t, configured)

	envDir := filepath.Join(t.TempDir(), "env")
	t.Setenv("COSTBASIS_DATA_DIR", envDir)
	dir, err = cfg.GetDataDir()
	require.NoError(t, err)
	assert.Equal(t, envDir, dir)

	runtimeDir := t.TempDir()
	SetRuntimeDataDir(runtimeDir)
	dir, err = cfg.GetDataDir()
	require.NoError(t, err)
	assert.Equal(t, runtimeDir, dir)

	path, err := cfg.GetDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(runtimeDir, "x.db"), path)
}

func TestGetDBPathEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	t.Setenv("COSTBASIS_DB_PATH", path)
	var cfg *Config
	got, err := cfg.GetDBPath()
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestIsMacOSWindows(t *testing.T) {
	assert.Equal(t, runtime.GOOS == "darwin", IsMacOS())
	assert.Equal(t, runtime.GOOS == "windows", IsWindows())
}
