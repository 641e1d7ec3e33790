package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all chathud configuration.
type Config struct {
	// Root for the database, logs and browser state.
	DataDir string `yaml:"data_dir"`

	Store   StoreConfig   `yaml:"store"`
	Browser BrowserConfig `yaml:"browser"`
	Extract ExtractConfig `yaml:"extract"`

	// Site name -> CSS selector. Entries override or extend the built-in
	// registry.
	Sites map[string]string `yaml:"sites,omitempty"`

	HUD     HUDConfig     `yaml:"hud"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the fragment database.
type StoreConfig struct {
	Path string `yaml:"path"` // empty = <data_dir>/chathud.db
	Trim bool   `yaml:"trim"` // trim fragments and drop blank ones before storing
}

// ExtractConfig configures in-page extraction.
type ExtractConfig struct {
	MaxFragmentBytes  int `yaml:"max_fragment_bytes"` // 0 = unlimited
	SchemaConcurrency int `yaml:"schema_concurrency"`
}

// ServerConfig configures the local HTTP surface.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Store: StoreConfig{
			Trim: false,
		},
		Browser: BrowserConfig{
			Headless:          false,
			Stealth:           true,
			ViewportWidth:     1280,
			ViewportHeight:    900,
			NavigationTimeout: "30s",
			EvalTimeout:       "",
		},
		Extract: ExtractConfig{
			MaxFragmentBytes:  0,
			SchemaConcurrency: 4,
		},
		HUD: HUDConfig{
			ToggleKey:      "ctrl+@",
			MaxSuggestions: 8,
			Theme:          "dark",
			CheckOnStart:   true,
			WatchStore:     true,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8765",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			File:      "chathud.log",
			DebugMode: false,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chathud"
	}
	return filepath.Join(home, ".chathud")
}

// DefaultConfigPath returns <home>/.chathud/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overwriting variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("CHATHUD_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if path := os.Getenv("CHATHUD_DB"); path != "" {
		c.Store.Path = path
	}
	if url := os.Getenv("CHATHUD_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if v := os.Getenv("CHATHUD_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if key := os.Getenv("CHATHUD_TOGGLE_KEY"); key != "" {
		c.HUD.ToggleKey = key
	}
	if addr := os.Getenv("CHATHUD_LISTEN"); addr != "" {
		c.Server.Listen = addr
	}
	if lvl := os.Getenv("CHATHUD_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = strings.ToLower(lvl)
	}
}

// StorePath returns the database path, defaulting to <data_dir>/chathud.db.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir, "chathud.db")
}

// BrowserDir returns the directory holding the control URL and sessions.
func (c *Config) BrowserDir() string {
	return filepath.Join(c.DataDir, "browser")
}

// ControlFile returns the file the launched browser's control URL is
// written to.
func (c *Config) ControlFile() string {
	return filepath.Join(c.BrowserDir(), "control.txt")
}

// SessionStore returns the path of the persisted browser session list.
func (c *Config) SessionStore() string {
	if c.Browser.SessionStore != "" {
		return c.Browser.SessionStore
	}
	return filepath.Join(c.BrowserDir(), "sessions.json")
}

// LogDir returns the directory log files are written to.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// GetNavigationTimeout returns the page navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavigationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetEvalTimeout returns the per-request evaluation timeout. Zero means the
// round trip is not bounded.
func (c *Config) GetEvalTimeout() time.Duration {
	if c.Browser.EvalTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Browser.EvalTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ValidLevels lists accepted logging levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" && c.Store.Path == "" {
		return fmt.Errorf("data_dir or store.path must be set")
	}
	if c.Extract.MaxFragmentBytes < 0 {
		return fmt.Errorf("extract.max_fragment_bytes must be >= 0, got %d", c.Extract.MaxFragmentBytes)
	}
	if c.Extract.SchemaConcurrency < 1 {
		return fmt.Errorf("extract.schema_concurrency must be >= 1, got %d", c.Extract.SchemaConcurrency)
	}
	if c.HUD.MaxSuggestions < 1 {
		return fmt.Errorf("hud.max_suggestions must be >= 1, got %d", c.HUD.MaxSuggestions)
	}
	if strings.TrimSpace(c.HUD.ToggleKey) == "" {
		return fmt.Errorf("hud.toggle_key must not be empty")
	}
	for name, sel := range c.Sites {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("sites: empty site name")
		}
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("sites.%s: empty selector", name)
		}
	}
	if c.Browser.EvalTimeout != "" {
		if _, err := time.ParseDuration(c.Browser.EvalTimeout); err != nil {
			return fmt.Errorf("browser.eval_timeout: %w", err)
		}
	}

	validLevel := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}
	return nil
}
