package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/psat-core/internal/state"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv(state.StateDirEnv, t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7891", cfg.Listen)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.PendingTTL)
	assert.Equal(t, 5*time.Second, cfg.PendingSweepInterval)
	assert.Equal(t, 2048, cfg.PendingMaxPerTab)
	assert.Equal(t, 1024, cfg.TombstoneLimit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Chrome.Headless)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(state.StateDirEnv, dir)
	file := filepath.Join(dir, "psat.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
listen: 127.0.0.1:9000
pending_ttl: 45s
log:
  level: debug
chrome:
  control_url: ws://127.0.0.1:9222/devtools/browser/x
`), 0o600))
	t.Setenv("PSAT_POLL_INTERVAL", "250ms")
	t.Setenv("PSAT_LOG_DEVELOPMENT", "true")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 45*time.Second, cfg.PendingTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval, "env overrides default")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/x", cfg.Chrome.ControlURL)
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	t.Setenv(state.StateDirEnv, t.TempDir())

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(state.StateDirEnv, dir)
	file := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("log:\n  level: chatty\n"), 0o600))

	_, err := Load(viper.New(), file)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := Config{
		Listen:               "127.0.0.1:1",
		PollInterval:         time.Second,
		PendingTTL:           time.Second,
		PendingSweepInterval: time.Second,
		PendingMaxPerTab:     1,
	}
	require.NoError(t, good.Validate())

	tests := map[string]func(*Config){
		"listen":        func(c *Config) { c.Listen = "" },
		"poll interval": func(c *Config) { c.PollInterval = 0 },
		"pending ttl":   func(c *Config) { c.PendingTTL = -time.Second },
		"sweep":         func(c *Config) { c.PendingSweepInterval = 0 },
		"max per tab":   func(c *Config) { c.PendingMaxPerTab = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := good
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoggingToFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(state.StateDirEnv, dir)

	lc, err := Config{Log: LogConfig{Level: "warn"}}.Logging()
	require.NoError(t, err)
	assert.Equal(t, []string{"stderr"}, lc.OutputPaths)

	lc, err = Config{Log: LogConfig{ToFile: true}}.Logging()
	require.NoError(t, err)
	require.Len(t, lc.OutputPaths, 2)
	assert.Equal(t, filepath.Join(dir, "logs", "psat.jsonl"), lc.OutputPaths[1])
	assert.DirExists(t, filepath.Join(dir, "logs"))
}
