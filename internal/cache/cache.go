// Package cache provides the TTL-classed, tag-invalidated in-memory
// response cache sitting in front of the store and analytics layers.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Class selects a TTL bucket appropriate to how fast the underlying data
// moves.
type Class string

const (
	// ClassFast is for intraday/near-real-time data.
	ClassFast Class = "fast"
	// ClassNormal is for daily bars and flows.
	ClassNormal Class = "normal"
	// ClassSlow is for fundamentals and catalog data.
	ClassSlow Class = "slow"
	// ClassStatus is for health/scheduler status responses.
	ClassStatus Class = "status"
)

// Config configures the cache's size and per-class TTLs.
type Config struct {
	MaxEntries int
	FastTTL    time.Duration
	NormalTTL  time.Duration
	SlowTTL    time.Duration
	StatusTTL  time.Duration
}

type entry struct {
	key       string
	value     interface{}
	tags      []string
	expiresAt time.Time
	elem      *list.Element
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// Cache is a size-bounded, TTL-expiring, tag-invalidatable cache. A nil
// value is never stored: empty results must not be cached, since a
// transient empty upstream response would otherwise be cached permanently
// within its TTL.
type Cache struct {
	mu    sync.Mutex
	cfg   Config
	data  map[string]*entry
	order *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64
}

// New creates a Cache with the given configuration.
func New(cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	return &Cache{
		cfg:   cfg,
		data:  make(map[string]*entry),
		order: list.New(),
	}
}

func (c *Cache) ttlFor(class Class) time.Duration {
	switch class {
	case ClassFast:
		return c.cfg.FastTTL
	case ClassSlow:
		return c.cfg.SlowTTL
	case ClassStatus:
		return c.cfg.StatusTTL
	default:
		return c.cfg.NormalTTL
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeLocked(e)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(e.elem)
	c.hits++
	return e.value, true
}

// Set stores value under key for the duration implied by class, tagged
// with the given invalidation tags. A nil value is a no-op: callers must
// never cache an empty result.
func (c *Cache) Set(key string, value interface{}, class Class, tags ...string) {
	if value == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.data[key]; ok {
		c.removeLocked(existing)
	}

	e := &entry{
		key:       key,
		value:     value,
		tags:      tags,
		expiresAt: time.Now().Add(c.ttlFor(class)),
	}
	e.elem = c.order.PushFront(e)
	c.data[key] = e

	for c.order.Len() > c.cfg.MaxEntries {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(*entry))
		c.evictions++
	}
}

// InvalidateTag removes every entry carrying the given tag.
func (c *Cache) InvalidateTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, e := range c.data {
		for _, t := range e.tags {
			if t == tag {
				c.removeLocked(e)
				removed++
				break
			}
		}
	}
	return removed
}

// InvalidateKey removes a single entry by key.
func (c *Cache) InvalidateKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.data[key]; ok {
		c.removeLocked(e)
	}
}

// removeLocked removes e from both the map and the LRU list. Caller must
// hold c.mu.
func (c *Cache) removeLocked(e *entry) {
	delete(c.data, e.key)
	c.order.Remove(e.elem)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.order.Len(),
	}
}

// Clear empties the cache entirely.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*entry)
	c.order = list.New()
}
