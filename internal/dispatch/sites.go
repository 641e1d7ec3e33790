package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownSite is returned for a scrape of a site not in the registry.
var ErrUnknownSite = errors.New("unknown site")

// Site is a chat page chathud knows how to scrape.
type Site struct {
	Name     string // registry key, lowercase
	Display  string // name used in status lines
	Selector string
}

// DefaultSites returns the built-in registry in display order.
func DefaultSites() []Site {
	return []Site{
		{Name: "chatgpt", Display: "ChatGPT", Selector: ".text-base"},
		{Name: "claude", Display: "Claude", Selector: ".font-claude-message"},
		{Name: "perplexity", Display: "Perplexity", Selector: ".prose"},
		{Name: "find", Display: "Find", Selector: ".prose"},
		{Name: "mistral", Display: "Mistral", Selector: ".prose"},
		{Name: "grok", Display: "Grok", Selector: ".message-bubble"},
		{Name: "lmarena", Display: "LMArena", Selector: ".prose"},
	}
}

// Registry maps site names to selectors, keeping a stable order.
type Registry struct {
	sites []Site
}

// NewRegistry builds the registry from the defaults with overrides applied.
// An override for a known site replaces its selector; unknown names are
// appended in alphabetical order.
func NewRegistry(overrides map[string]string) *Registry {
	sites := DefaultSites()
	index := make(map[string]int, len(sites))
	for i, s := range sites {
		index[s.Name] = i
	}

	var extra []string
	for name := range overrides {
		key := strings.ToLower(strings.TrimSpace(name))
		if i, ok := index[key]; ok {
			sites[i].Selector = overrides[name]
			continue
		}
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		sites = append(sites, Site{
			Name:     strings.ToLower(strings.TrimSpace(name)),
			Display:  name,
			Selector: overrides[name],
		})
	}
	return &Registry{sites: sites}
}

// Lookup finds a site by name, ignoring case.
func (r *Registry) Lookup(name string) (Site, error) {
	for _, s := range r.sites {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("%w: %s", ErrUnknownSite, name)
}

// All returns the sites in registry order.
func (r *Registry) All() []Site {
	out := make([]Site, len(r.sites))
	copy(out, r.sites)
	return out
}

// Len returns the number of registered sites.
func (r *Registry) Len() int { return len(r.sites) }
