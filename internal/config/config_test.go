package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ctrl+@", cfg.HUD.ToggleKey)
	assert.Equal(t, filepath.Join(cfg.DataDir, "chathud.db"), cfg.StorePath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "browser", "control.txt"), cfg.ControlFile())
	assert.Equal(t, time.Duration(0), cfg.GetEvalTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetNavigationTimeout())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().HUD, cfg.HUD)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/chathud"
	cfg.Sites = map[string]string{"chatgpt": ".markdown"}
	cfg.Browser.EvalTimeout = "5s"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, 5*time.Second, got.GetEvalTimeout())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hud: [unterminated"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("store and browser", func(t *testing.T) {
		t.Setenv("CHATHUD_DB", "/tmp/x.db")
		t.Setenv("CHATHUD_DEBUGGER_URL", "ws://127.0.0.1:9222/devtools/browser/abc")
		t.Setenv("CHATHUD_HEADLESS", "true")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "/tmp/x.db", cfg.StorePath())
		assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.DebuggerURL)
		assert.True(t, cfg.Browser.Headless)
	})

	t.Run("invalid bool is ignored", func(t *testing.T) {
		t.Setenv("CHATHUD_HEADLESS", "sometimes")
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.False(t, cfg.Browser.Headless)
	})

	t.Run("env beats file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("hud:\n  toggle_key: f12\nserver:\n  listen: :1\n"), 0644))
		t.Setenv("CHATHUD_TOGGLE_KEY", "ctrl+k")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "ctrl+k", cfg.HUD.ToggleKey)
		assert.Equal(t, ":1", cfg.Server.Listen)
	})

	t.Run("log level is lowercased", func(t *testing.T) {
		t.Setenv("CHATHUD_LOG_LEVEL", "WARN")
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.Logging.Level)
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CHATHUD_LISTEN=127.0.0.1:9999\n"), 0644))

	t.Setenv("CHATHUD_LISTEN", "")
	os.Unsetenv("CHATHUD_LISTEN")
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env"), envFile))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Listen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative fragment limit", func(c *Config) { c.Extract.MaxFragmentBytes = -1 }},
		{"zero concurrency", func(c *Config) { c.Extract.SchemaConcurrency = 0 }},
		{"zero suggestions", func(c *Config) { c.HUD.MaxSuggestions = 0 }},
		{"blank toggle", func(c *Config) { c.HUD.ToggleKey = " " }},
		{"blank selector", func(c *Config) { c.Sites = map[string]string{"grok": ""} }},
		{"bad eval timeout", func(c *Config) { c.Browser.EvalTimeout = "soon" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggingCategories(t *testing.T) {
	lc := LoggingConfig{Categories: map[string]bool{"store": false}}
	assert.False(t, lc.IsCategoryEnabled("store"))
	assert.True(t, lc.IsCategoryEnabled("hud"))
	assert.Equal(t, "info", lc.EffectiveLevel())

	lc.DebugMode = true
	assert.Equal(t, "debug", lc.EffectiveLevel())
}
