// Package hud holds the overlay's state: whether it is shown, what has been
// typed and which stored fragments match. Rendering lives in the terminal
// UI; this package has no terminal dependencies.
package hud

import (
	"context"
	"strings"
	"sync"

	"chathud/internal/logging"
	"chathud/internal/store"
)

// Source lists stored fragments. *store.LocalStore implements it.
type Source interface {
	All(ctx context.Context) ([]store.Fragment, error)
}

// Cache is an in-memory, read-only copy of the store used for suggestion
// filtering. It is rebuilt wholesale by Reload.
type Cache struct {
	src   Source
	mu    sync.RWMutex
	items []store.Fragment
}

// NewCache creates an empty cache over src.
func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

// Reload replaces the cached fragments with the store's current contents.
// On error the previous contents are kept.
func (c *Cache) Reload(ctx context.Context) error {
	items, err := c.src.All(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	logging.HUDDebug("suggestion cache reloaded: %d fragments", len(items))
	return nil
}

// Len returns the number of cached fragments.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Filter returns the fragments whose text contains query, ignoring case,
// in insertion order. An empty query matches everything.
func (c *Cache) Filter(query string) []store.Fragment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if query == "" {
		out := make([]store.Fragment, len(c.items))
		copy(out, c.items)
		return out
	}

	needle := strings.ToLower(query)
	var out []store.Fragment
	for _, f := range c.items {
		if strings.Contains(strings.ToLower(f.Text), needle) {
			out = append(out, f)
		}
	}
	return out
}
