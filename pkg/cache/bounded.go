// Package cache provides a byte-size-bounded LRU cache with absolute
// per-entry time-to-live, shared process-wide by every graph manager.
//
// The cache is explicitly constructed at the composition root and passed by
// reference; there is no package-level instance. Two policies evict,
// whichever triggers first:
//   - LRU under memory pressure: Set evicts least-recently-accessed entries
//     one at a time until the new entry fits under the capacity ceiling.
//   - Absolute TTL: Get treats entries older than the TTL as misses and
//     removes them (lazy expiry; nothing scans in the background).
package cache

import (
	"container/list"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxBytes = 100 * 1024 * 1024
	DefaultTTL      = 30 * time.Minute
)

// Config controls capacity and expiry.
type Config struct {
	// MaxBytes is the capacity ceiling in approximate serialized bytes.
	MaxBytes int64
	// TTL is the absolute expiry age of an entry, independent of access.
	TTL time.Duration
}

// Bounded is the shared eviction cache. Safe for concurrent use.
type Bounded struct {
	mu       sync.Mutex
	maxBytes int64
	ttl      time.Duration
	items    map[string]*list.Element
	// lru front = most recently accessed.
	lru  *list.List
	size int64
}

type item struct {
	key      string
	value    any
	size     int64
	storedAt time.Time
}

// New creates a cache with the given config, applying defaults for zero
// fields.
func New(cfg Config) *Bounded {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Bounded{
		maxBytes: cfg.MaxBytes,
		ttl:      cfg.TTL,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached value for key. An entry older than the TTL is
// removed and reported as a miss.
func (c *Bounded) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	it := elem.Value.(*item)
	if time.Since(it.storedAt) > c.ttl {
		c.removeLocked(elem)
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return it.value, true
}

// Set stores value under key. Replacing an existing key first subtracts its
// prior size from the running total; then least-recently-accessed entries
// are evicted one at a time until the new entry fits under the ceiling. An
// entry larger than the whole ceiling empties the cache and is stored
// anyway.
func (c *Bounded) Set(key string, value any) {
	size := approxSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
	for c.size+size > c.maxBytes && c.lru.Len() > 0 {
		c.removeLocked(c.lru.Back())
	}

	elem := c.lru.PushFront(&item{key: key, value: value, size: size, storedAt: time.Now()})
	c.items[key] = elem
	c.size += size
}

// Delete removes key if present.
func (c *Bounded) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
}

// DeletePrefix removes every entry whose key starts with prefix. Managers
// use this to drop all derived results for one backing file on write.
func (c *Bounded) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(elem)
		}
	}
}

// Clear empties the cache.
func (c *Bounded) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
}

// Len returns the number of live entries.
func (c *Bounded) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the approximate total byte size of live entries.
func (c *Bounded) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Bounded) removeLocked(elem *list.Element) {
	it := elem.Value.(*item)
	c.lru.Remove(elem)
	delete(c.items, it.key)
	c.size -= it.size
}

// approxSize estimates an entry's memory cost as its JSON-serialized
// length. Unserializable values get a fixed nominal cost so they still
// participate in accounting.
func approxSize(v any) int64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 64
	}
	return int64(len(b))
}
