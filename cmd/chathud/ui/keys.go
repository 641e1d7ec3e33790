package ui

import (
	"fmt"

	"chathud/internal/dispatch"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the overlay's bindings.
type KeyMap struct {
	Toggle  key.Binding
	Close   key.Binding
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Check   key.Binding
	Grab    key.Binding
	Quit    key.Binding
	Scrapes []key.Binding // one per site, registry order
}

// NewKeyMap builds the bindings. The n-th site (n <= 9) is bound to Fn and
// alt+n.
func NewKeyMap(toggle string, sites []dispatch.Site) KeyMap {
	km := KeyMap{
		Toggle: key.NewBinding(key.WithKeys(toggle), key.WithHelp(toggle, "suggestions")),
		Close:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Up:     key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("↑", "prev")),
		Down:   key.NewBinding(key.WithKeys("down", "ctrl+n", "tab"), key.WithHelp("↓", "next")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "use")),
		Check:  key.NewBinding(key.WithKeys("alt+s"), key.WithHelp("alt+s", "check schemas")),
		Grab:   key.NewBinding(key.WithKeys("alt+g"), key.WithHelp("alt+g", "grab page")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
	for i, site := range sites {
		if i >= 9 {
			break
		}
		fn := fmt.Sprintf("f%d", i+1)
		alt := fmt.Sprintf("alt+%d", i+1)
		km.Scrapes = append(km.Scrapes, key.NewBinding(
			key.WithKeys(fn, alt),
			key.WithHelp(fn, "scrape "+site.Display),
		))
	}
	return km
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	out := []key.Binding{k.Toggle, k.Select, k.Close, k.Check, k.Grab}
	if len(k.Scrapes) > 0 {
		out = append(out, k.Scrapes[0])
	}
	return append(out, k.Quit)
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Up, k.Down, k.Select, k.Close},
		k.Scrapes,
		{k.Check, k.Grab, k.Quit},
	}
}
