package layout

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// Cache keeps parsed layouts keyed by absolute path. A layout is parsed on
// first request and shared afterwards.
type Cache struct {
	entries map[string]*Definition
	mutex   sync.Mutex
	enabled bool
	opts    []Option
}

// NewCache creates a layout cache. A disabled cache parses on every Load.
func NewCache(enabled bool, opts ...Option) *Cache {
	return &Cache{
		entries: make(map[string]*Definition),
		enabled: enabled,
		opts:    opts,
	}
}

// Load returns the layout at path, parsing it if it is not cached
func (c *Cache) Load(path string) (*Definition, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve layout path %s: %w", path, err)
	}
	if !c.enabled {
		return ParseFile(abs, c.opts...)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if def, ok := c.entries[abs]; ok {
		return def, nil
	}
	def, err := ParseFile(abs, c.opts...)
	if err != nil {
		return nil, err
	}
	c.entries[abs] = def
	return def, nil
}

// Delete drops the layout at path
func (c *Cache) Delete(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, abs)
}

// Size returns the number of cached layouts
func (c *Cache) Size() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Clear removes all cached layouts
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]*Definition)
}

// Paths returns the cached layout paths, sorted
func (c *Cache) Paths() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
