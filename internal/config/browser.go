package config

// BrowserConfig configures the Chrome instance chathud drives.
type BrowserConfig struct {
	// Attach to an existing browser instead of launching one.
	DebuggerURL string `yaml:"debugger_url" json:"debugger_url,omitempty"`

	// Extra launcher flags, "name=value" or bare "name".
	Launch []string `yaml:"launch,omitempty" json:"launch,omitempty"`

	Headless       bool `yaml:"headless" json:"headless"`
	Stealth        bool `yaml:"stealth" json:"stealth"`
	ViewportWidth  int  `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int  `yaml:"viewport_height" json:"viewport_height"`

	NavigationTimeout string `yaml:"navigation_timeout" json:"navigation_timeout"`
	EvalTimeout       string `yaml:"eval_timeout" json:"eval_timeout,omitempty"` // empty = unbounded

	SessionStore string `yaml:"session_store" json:"session_store,omitempty"`
}
