package hud

import (
	"chathud/internal/logging"
	"chathud/internal/store"
)

// State is the overlay's visibility.
type State int

const (
	Hidden State = iota
	Visible
)

func (s State) String() string {
	if s == Visible {
		return "visible"
	}
	return "hidden"
}

// Controller is the overlay state machine.
//
//	Hidden --Toggle--> Visible
//	Visible --Toggle | Escape | Select--> Hidden
//
// Escape while hidden does nothing.
type Controller struct {
	cache       *Cache
	state       State
	query       string
	suggestions []store.Fragment
}

// NewController creates a hidden controller over cache.
func NewController(cache *Cache) *Controller {
	return &Controller{cache: cache}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Visible reports whether the overlay is shown.
func (c *Controller) Visible() bool { return c.state == Visible }

// Query returns the input text.
func (c *Controller) Query() string { return c.query }

// Suggestions returns the fragments matching the query as of the last
// filter.
func (c *Controller) Suggestions() []store.Fragment { return c.suggestions }

// Toggle flips visibility. Showing refreshes the suggestions for the
// current input.
func (c *Controller) Toggle() State {
	if c.state == Visible {
		c.state = Hidden
	} else {
		c.state = Visible
		c.Refresh()
	}
	logging.HUDDebug("overlay %s", c.state)
	return c.state
}

// Escape hides the overlay.
func (c *Controller) Escape() {
	c.state = Hidden
}

// SetQuery records the input and refilters.
func (c *Controller) SetQuery(q string) []store.Fragment {
	c.query = q
	c.Refresh()
	return c.suggestions
}

// Refresh reapplies the current query to the cache, for example after a
// scrape reloaded it.
func (c *Controller) Refresh() {
	c.suggestions = c.cache.Filter(c.query)
}

// Select copies suggestion i into the input and hides the overlay. It
// reports false, changing nothing, when i is out of range.
func (c *Controller) Select(i int) (string, bool) {
	if i < 0 || i >= len(c.suggestions) {
		return "", false
	}
	c.query = c.suggestions[i].Text
	c.state = Hidden
	return c.query, true
}
