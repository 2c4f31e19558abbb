package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "hospital.db", cfg.Store.Path)
	assert.Equal(t, 1000, cfg.Ingest.BatchSize)
	assert.Equal(t, "sources.yaml", cfg.Fetch.Manifest)
	assert.Equal(t, ".", cfg.Fetch.Dir)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  path: /tmp/hospitals.db
ingest:
  batch_size: 250
log:
  level: debug
  format: console
server:
  addr: ":9090"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/hospitals.db", cfg.Store.Path)
	assert.Equal(t, 250, cfg.Ingest.BatchSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	// Defaults still apply for unset values
	assert.Equal(t, "sources.yaml", cfg.Fetch.Manifest)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("HOSPITAL_STORE_DRIVER", "postgres")
	t.Setenv("HOSPITAL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigDirEnv(t *testing.T) {
	cfgDir := t.TempDir()
	workDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(workDir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := "store:\n  driver: sqlite\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("HOSPITAL_CONFIG_DIR", cfgDir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{Driver: "postgres"},
		Ingest: IngestConfig{BatchSize: 1000},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/hospitals"
	assert.NoError(t, cfg.Validate())
}

func TestValidateSQLiteNeedsPath(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{Driver: "sqlite"},
		Ingest: IngestConfig{BatchSize: 1000},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{Driver: "oracle"},
		Ingest: IngestConfig{BatchSize: 1000},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateBatchSize(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{Driver: "sqlite", Path: "x.db"},
		Ingest: IngestConfig{BatchSize: 0},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.batch_size")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
