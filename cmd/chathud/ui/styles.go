// Package ui provides the terminal overlay for chathud: an input line with a
// suggestion box drawn over it, a status line and the key help.
package ui

import (
	"os"
	"strconv"
	"strings"

	"chathud/internal/dispatch"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Light Mode Colors
	LightForeground = lipgloss.Color("#101F38")
	LightAccent     = lipgloss.Color("#2E7D32")
	LightMuted      = lipgloss.Color("#6b7280")
	LightBorder     = lipgloss.Color("#c8ccd2")
	LightSelected   = lipgloss.Color("#e1e4e8")

	// Dark Mode Colors
	DarkForeground = lipgloss.Color("#f2f2f2")
	DarkAccent     = lipgloss.Color("#8BC34A")
	DarkMuted      = lipgloss.Color("#7a869a")
	DarkBorder     = lipgloss.Color("#2a3850")
	DarkSelected   = lipgloss.Color("#1e2a3d")

	// Status colors (same in both modes)
	StatusInfo    = lipgloss.Color("#ffffff")
	StatusSuccess = lipgloss.Color("#4caf50")
	StatusWarning = lipgloss.Color("#ff9800")
	StatusError   = lipgloss.Color("#f44336")
)

// Theme holds the current color scheme
type Theme struct {
	Foreground lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Selected   lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Foreground: LightForeground,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		Selected:   LightSelected,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Foreground: DarkForeground,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Selected:   DarkSelected,
		IsDark:     true,
	}
}

// ThemeFor resolves a configured theme name. "auto" looks at COLORFGBG.
func ThemeFor(name string) Theme {
	switch strings.ToLower(name) {
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	}
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) == 2 {
		if bg, err := strconv.Atoi(parts[1]); err == nil && ((bg >= 0 && bg <= 6) || bg == 8) {
			return DarkTheme()
		}
		return LightTheme()
	}
	return DarkTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	Header     lipgloss.Style
	Prompt     lipgloss.Style
	Overlay    lipgloss.Style
	Suggestion lipgloss.Style
	Selected   lipgloss.Style
	Site       lipgloss.Style
	Muted      lipgloss.Style

	Info    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Overlay: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Suggestion: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Selected: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Background(theme.Selected).
			Bold(true),

		Site: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Info:    lipgloss.NewStyle().Foreground(StatusInfo),
		Success: lipgloss.NewStyle().Foreground(StatusSuccess).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(StatusWarning).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(StatusError).Bold(true),
	}
}

// Status returns the style for a notice level.
func (s Styles) Status(l dispatch.Level) lipgloss.Style {
	switch l {
	case dispatch.LevelSuccess:
		return s.Success
	case dispatch.LevelWarning:
		return s.Warning
	case dispatch.LevelError:
		return s.Error
	default:
		return s.Info
	}
}
