package schema

import (
	"container/list"
	"sync"
	"time"
)

// CacheStats describes the cache's current occupancy
type CacheStats struct {
	Size     int      `json:"size"`
	Capacity int      `json:"capacity"`
	Keys     []string `json:"keys"`
}

type cacheEntry struct {
	key       string
	schema    *Schema
	createdAt time.Time
	ttl       time.Duration
}

// Cache is an in-memory TTL+LRU cache of introspected schemas, keyed by
// dialect:database. A miss is always safe: callers fall back to live
// introspection. Reads refresh recency but never the TTL.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

// NewCache creates a schema cache with the given capacity and default TTL
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 32
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached schema for key, or absent when the key is missing
// or its entry has expired. Expired entries are removed eagerly; the caller
// is responsible for re-populating via introspection.
func (c *Cache) Get(key string) (*Schema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := element.Value.(*cacheEntry)

	if c.now().Sub(entry.createdAt) >= entry.ttl {
		c.order.Remove(element)
		delete(c.entries, key)

		return nil, false
	}

	c.order.MoveToFront(element)

	return entry.schema, true
}

// Set stores a schema under key with the default TTL
func (c *Cache) Set(key string, schema *Schema) {
	c.SetWithTTL(key, schema, c.ttl)
}

// SetWithTTL stores a schema under key with an explicit TTL, evicting the
// least recently used entry when the cache is full
func (c *Cache) SetWithTTL(key string, schema *Schema, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.ttl
	}

	if element, ok := c.entries[key]; ok {
		entry := element.Value.(*cacheEntry)
		entry.schema = schema
		entry.createdAt = c.now()
		entry.ttl = ttl
		c.order.MoveToFront(element)

		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{
		key:       key,
		schema:    schema,
		createdAt: c.now(),
		ttl:       ttl,
	})
}

// Invalidate drops the entry for key. It must be called whenever the
// underlying table set changes, or stale structure reaches the prompt.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[key]; ok {
		c.order.Remove(element)
		delete(c.entries, key)
	}
}

// InvalidateAll drops every entry
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats reports current occupancy, keys ordered most recently used first
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:     c.order.Len(),
		Capacity: c.capacity,
	}

	for element := c.order.Front(); element != nil; element = element.Next() {
		stats.Keys = append(stats.Keys, element.Value.(*cacheEntry).key)
	}

	return stats
}
