package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// entry is a cached value with expiration. A nil value is a valid entry:
// repositories cache "known absent" lookups to avoid repeated store hits.
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a process-local read-through cache with a fixed time-to-live.
// It is shared by all requests; consistency is limited to TTL expiry and
// wholesale namespace invalidation on writes.
type Cache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]entry
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:   ttl,
		items: make(map[string]entry),
	}
}

// Key builds a cache key from a namespace, an operation name and its
// parameters. Parameter order does not matter: keys are sorted before
// serialization so equivalent calls map to the same entry.
func Key(namespace, operation string, params map[string]interface{}) string {
	if len(params) == 0 {
		return namespace + ":" + operation
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}

	return namespace + ":" + operation + ":" + strings.Join(parts, "&")
}

// Get returns the cached value for key. The second return value reports
// whether a live entry exists; a nil value with true means a cached
// "absent" result.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// InvalidateNamespace removes every entry whose key belongs to the given
// namespace. Writes call this instead of tracking individual keys.
func (c *Cache) InvalidateNamespace(namespace string) {
	prefix := namespace + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
}

// Len returns the number of stored entries, including expired ones that
// have not been touched since expiry.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
