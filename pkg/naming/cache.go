package naming

import (
	"context"
	"sync"

	"github.com/wehubfusion/Hodos/pkg/content"
)

// cacheKey pairs the record id with the raw node name. Wildcard items share a
// record id across many distinct paths, so the id alone is not unique.
type cacheKey struct {
	id  content.RecordID
	raw string
}

// Cache memoizes resolved display names for the lifetime of one projection
// scope. It never evicts.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]string)}
}

// Get returns the cached name for (id, rawName).
func (c *Cache) Get(ctx context.Context, id content.RecordID, rawName string) (string, bool) {
	c.mu.RLock()
	name, ok := c.entries[cacheKey{id: id, raw: rawName}]
	c.mu.RUnlock()

	recordLookup(ctx, ok)
	return name, ok
}

// Put stores name for (id, rawName). Nodes without a backing item are never
// cached.
func (c *Cache) Put(id content.RecordID, rawName, name string) {
	if id.IsNil() {
		return
	}
	c.mu.Lock()
	c.entries[cacheKey{id: id, raw: rawName}] = name
	c.mu.Unlock()
}

// Len returns the number of cached names.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
