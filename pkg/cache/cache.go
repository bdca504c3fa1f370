// Package cache holds decoded blob payloads keyed by filename. Blobs are
// immutable once written, so a cached payload can never go stale; the TTL
// exists only to bound how long large payloads pin memory.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats holds cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	Capacity  int
	Evictions int64
	Expired   int64
}

// Cache is a threadsafe LRU for blob payloads with optional TTL.
type Cache struct {
	mu       sync.Mutex
	ll       *list.List
	items    map[string]*list.Element
	capacity int
	ttl      time.Duration
	stats    Stats
}

type entry struct {
	name    string
	payload []byte
	expire  time.Time
}

// New returns a cache with the given capacity. A ttl of zero disables
// expiry. Capacity at or below zero defaults to 1024 entries.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Cache{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Get retrieves a payload if present and not expired.
func (c *Cache) Get(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ele, ok := c.items[name]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	ent := ele.Value.(*entry)
	if c.ttl > 0 && time.Now().After(ent.expire) {
		c.removeElement(ele)
		c.stats.Expired++
		c.stats.Misses++
		return nil, false
	}
	c.ll.MoveToFront(ele)
	c.stats.Hits++
	return ent.payload, true
}

// Put stores a payload, evicting the least recently used entry when full.
func (c *Cache) Put(name string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.items[name]; ok {
		ent := ele.Value.(*entry)
		ent.payload = payload
		ent.expire = time.Now().Add(c.ttl)
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(&entry{name: name, payload: payload, expire: time.Now().Add(c.ttl)})
	c.items[name] = ele
	if c.ll.Len() > c.capacity {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
			c.stats.Evictions++
		}
	}
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.ll.Len()
	s.Capacity = c.capacity
	return s
}

func (c *Cache) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.items, ele.Value.(*entry).name)
}
