package index

import (
	"sync"
	"time"
)

// DefaultTTL is how long a fetched index is reused.
const DefaultTTL = time.Hour

// Cache holds the most recently fetched index for one session. The entry
// remembers its source, so asking for a different source is a miss.
type Cache struct {
	TTL time.Duration
	Now func() time.Time

	mu        sync.Mutex
	source    string
	index     *PackagesIndex
	fetchedAt time.Time
}

// NewCache returns a cache with the given TTL and the wall clock.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{TTL: ttl, Now: time.Now}
}

func (c *Cache) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Get returns the cached index for source while it is fresh.
func (c *Cache) Get(source string) (*PackagesIndex, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index == nil || c.source != source {
		return nil, false
	}
	if c.now().Sub(c.fetchedAt) >= c.TTL {
		return nil, false
	}
	return c.index, true
}

// Put replaces the cached entry.
func (c *Cache) Put(source string, idx *PackagesIndex) {
	if c == nil || idx == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
	c.index = idx
	c.fetchedAt = c.now()
}

// Clear drops the cached entry.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = ""
	c.index = nil
	c.fetchedAt = time.Time{}
}

// Source reports where the cached entry came from and when.
func (c *Cache) Source() (string, time.Time, bool) {
	if c == nil {
		return "", time.Time{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source, c.fetchedAt, c.index != nil
}
