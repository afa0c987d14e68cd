// Package cache provides a typed in-memory cache with TTL and LRU eviction,
// used by enrichment adapters to avoid repeating lookups for the same domain.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCapacity is used when a non-positive capacity is given.
const DefaultCapacity = 100

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	element   *list.Element
}

// LRU is a concurrency-safe least-recently-used cache whose entries may expire.
type LRU[V any] struct {
	clock clockwork.Clock

	mu       sync.Mutex
	capacity int
	items    map[string]*entry[V]
	order    *list.List // front = most recently used
}

// New creates a cache holding up to capacity entries.
func New[V any](capacity int) *LRU[V] {
	return NewWithClock[V](capacity, clockwork.NewRealClock())
}

// NewWithClock is New with an injectable clock for expiry.
func NewWithClock[V any](capacity int, clock clockwork.Clock) *LRU[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[V]{
		clock:    clock,
		capacity: capacity,
		items:    make(map[string]*entry[V]),
		order:    list.New(),
	}
}

// Get returns the value for key and marks it as recently used.
// Expired entries are dropped and reported as missing.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.expired(e, c.clock.Now()) {
		c.remove(e)
		return zero, false
	}
	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores value under key. A ttl of 0 never expires.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.clock.Now().Add(ttl)
	}

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(e.element)
		return
	}

	if len(c.items) >= c.capacity {
		if back := c.order.Back(); back != nil {
			c.remove(back.Value.(*entry[V]))
		}
	}

	e := &entry[V]{key: key, value: value, expiresAt: expiresAt}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

// Delete removes key.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e)
	}
}

// Len returns the number of entries, expired ones included until they are touched.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Capacity returns the maximum number of entries.
func (c *LRU[V]) Capacity() int { return c.capacity }

// CleanExpired removes every expired entry and returns how many were dropped.
func (c *LRU[V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for _, e := range c.items {
		if c.expired(e, now) {
			c.remove(e)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker runs CleanExpired every interval until the returned
// stop function is called.
func (c *LRU[V]) StartCleanupWorker(interval time.Duration) func() {
	stop := make(chan struct{})
	ticker := c.clock.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				c.CleanExpired()
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

func (c *LRU[V]) expired(e *entry[V], now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// remove must be called with c.mu held.
func (c *LRU[V]) remove(e *entry[V]) {
	delete(c.items, e.key)
	c.order.Remove(e.element)
}
