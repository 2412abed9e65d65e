package indicators

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// SnapshotCache deduplicates repeated sub-computations within one snapshot
// analysis. The analyzer creates a fresh cache per analyze call and discards
// it afterwards, so entries never leak across snapshots. The cache is still
// bounded and TTL'd as a safety net against runaway key sets.
type SnapshotCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	key     string
	value   interface{}
	expires time.Time
}

// DefaultCacheCapacity bounds the number of memoized sub-computations per
// snapshot.
const DefaultCacheCapacity = 128

// DefaultCacheTTL expires entries that outlive any sane analysis budget.
const DefaultCacheTTL = 30 * time.Second

// NewSnapshotCache creates a bounded LRU cache with TTL.
func NewSnapshotCache(capacity int, ttl time.Duration) *SnapshotCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SnapshotCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Key builds a cache key scoped to one snapshot and operation.
func Key(symbol string, timestamp int64, op string) string {
	return fmt.Sprintf("%s:%d:%s", symbol, timestamp, op)
}

// Get returns a cached value and whether it was present and fresh.
func (c *SnapshotCache) Get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.value, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *SnapshotCache) Set(key string, value interface{}) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	el := c.order.PushFront(&cacheEntry{
		key:     key,
		value:   value,
		expires: time.Now().Add(c.ttl),
	})
	c.entries[key] = el
}

// GetFloat fetches a cached float64 value.
func (c *SnapshotCache) GetFloat(key string) (float64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Len returns the number of live entries.
func (c *SnapshotCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
