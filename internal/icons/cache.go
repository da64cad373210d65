// Package icons memoizes rendered app icons. Rendering an icon (fetching the
// raster from the window manager and encoding it to PNG) is the expensive step,
// so the derived artifact is kept per package with no eviction; the key space
// is bounded by the apps seen on one machine.
package icons

import "sync"

// Render produces the encoded icon for a package.
type Render func(pkg string) (string, error)

// Cache is a concurrency-safe memoizing map from package identifier to encoded
// icon.
type Cache struct {
	mu     sync.Mutex
	icons  map[string]string
	render Render
}

func NewCache(render Render) *Cache {
	return &Cache{
		icons:  make(map[string]string),
		render: render,
	}
}

// Get returns the cached icon for pkg, rendering and caching it on first use.
// Render failures are not cached: a package that has no icon now may gain one
// after the app next creates a window.
func (c *Cache) Get(pkg string) (string, error) {
	c.mu.Lock()
	if icon, ok := c.icons[pkg]; ok {
		c.mu.Unlock()
		return icon, nil
	}
	c.mu.Unlock()

	icon, err := c.render(pkg)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.icons[pkg] = icon
	c.mu.Unlock()
	return icon, nil
}

// Len returns the number of cached icons.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.icons)
}
