package config

// HUDConfig configures the overlay.
type HUDConfig struct {
	ToggleKey      string `yaml:"toggle_key" json:"toggle_key"` // bubbletea key name; ctrl+@ is ctrl+space
	MaxSuggestions int    `yaml:"max_suggestions" json:"max_suggestions"`
	Theme          string `yaml:"theme" json:"theme"` // dark, light
	CheckOnStart   bool   `yaml:"check_on_start" json:"check_on_start"`
	WatchStore     bool   `yaml:"watch_store" json:"watch_store"`
}

// IsDark reports whether the dark palette should be used.
func (h HUDConfig) IsDark() bool {
	return h.Theme != "light"
}
