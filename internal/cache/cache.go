// Package cache models one replica's bounded content cache.
// Eviction is strict LRU over a recency list, so a fixed access
// sequence always produces the same final contents.
package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrCapacityExceeded means the item alone is larger than the cache
// and can never fit. The caller must not retry the same key/size.
var ErrCapacityExceeded = errors.New("content size exceeds cache capacity")

type Entry struct {
	Key        string
	Size       uint64
	InsertedAt time.Time
	AccessedAt time.Time
}

type Stats struct {
	Entries   int
	Used      uint64
	Capacity  uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

type LRU struct {
	mu       sync.Mutex
	capacity uint64
	used     uint64

	// front of list is the most recently used entry; ties between
	// equal timestamps are resolved by list position, which follows
	// insertion order.
	list  *list.List
	items map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

func NewLRU(capacity uint64) *LRU {
	return &LRU{
		capacity: capacity,
		list:     list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Lookup reports whether key is cached, refreshing its recency on hit.
func (c *LRU) Lookup(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return false
	}
	entry := elem.Value.(*Entry)
	entry.AccessedAt = c.now()
	c.list.MoveToFront(elem)
	c.hits++
	return true
}

// Insert stores key, evicting least-recently-used entries until it
// fits. Re-inserting an existing key replaces it.
func (c *LRU) Insert(key string, size uint64) error {
	if size > c.capacity {
		return ErrCapacityExceeded
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.used -= elem.Value.(*Entry).Size
		c.list.Remove(elem)
		delete(c.items, key)
	}

	for c.used+size > c.capacity {
		c.evictOldest()
	}

	t := c.now()
	elem := c.list.PushFront(&Entry{
		Key:        key,
		Size:       size,
		InsertedAt: t,
		AccessedAt: t,
	})
	c.items[key] = elem
	c.used += size
	return nil
}

// Invalidate removes key if present. Idempotent.
func (c *LRU) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return
	}
	c.used -= elem.Value.(*Entry).Size
	c.list.Remove(elem)
	delete(c.items, key)
}

func (c *LRU) evictOldest() {
	back := c.list.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*Entry)
	c.used -= entry.Size
	c.list.Remove(back)
	delete(c.items, entry.Key)
	c.evictions++
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:   c.list.Len(),
		Used:      c.used,
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Keys returns cached keys from most to least recently used.
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.list.Len())
	for elem := c.list.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry).Key)
	}
	return keys
}
