package urlcheck

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	check   Check
	expires time.Time
}

// Cache remembers reachable URLs for a bounded time. Failed checks are not
// cached so a flaky site gets another chance on the next field.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

// Get returns a live cached check for rawURL.
func (c *Cache) Get(rawURL string) (Check, bool) {
	if c == nil {
		return Check{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[rawURL]
	if !ok {
		return Check{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, rawURL)
		return Check{}, false
	}
	return e.check, true
}

// Put stores a reachable check. Unreachable checks are ignored.
func (c *Cache) Put(check Check) {
	if c == nil || !check.Reachable || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[check.URL] = cacheEntry{check: check, expires: c.now().Add(c.ttl)}
}

// Len reports how many entries are stored, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Validate consults the cache before probing rawURL.
func (c *Cache) Validate(ctx context.Context, v *Validator, rawURL string, timeout time.Duration) Check {
	if hit, ok := c.Get(rawURL); ok {
		return hit
	}
	check := v.HeadCheck(ctx, rawURL, timeout)
	c.Put(check)
	return check
}
