// ABOUTME: Thread-safe TTL cache for idempotent request handling.
// ABOUTME: A key is reserved while its request runs, then holds the result until it expires.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// State describes what Reserve found for a key.
type State int

const (
	// Reserved means the key was unseen; the caller now owns it and must
	// call Store or Release.
	Reserved State = iota
	// InFlight means another caller holds the reservation.
	InFlight
	// Completed means a result is stored and was returned.
	Completed
)

func (s State) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case InFlight:
		return "in_flight"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// cacheEntry stores the timestamp, result and list element for a cached key.
type cacheEntry[V any] struct {
	timestamp time.Time
	element   *list.Element
	value     V
	done      bool
}

// Cache provides a thread-safe, TTL-based, size-limited map from request key
// to result. Only completed entries count against eviction. Uses a doubly-linked list to maintain insertion order for O(1)
// eviction.
type Cache[V any] struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry[V]
	order   *list.List // List of keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	c := &Cache[V]{
		seen:    make(map[string]*cacheEntry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Reserve atomically looks up key and claims it if it is new or expired.
// The value is only meaningful when the state is Completed.
func (c *Cache[V]) Reserve(key string) (V, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.seen[key]
	if ok && time.Since(entry.timestamp) < c.ttl {
		if entry.done {
			return entry.value, Completed
		}
		return zero, InFlight
	}
	if ok {
		c.removeLocked(key, entry)
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry[V]{
		timestamp: time.Now(),
		element:   elem,
	}
	return zero, Reserved
}

// Store records the result for a reserved key and restarts its TTL.
func (c *Cache[V]) Store(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if !ok {
		if len(c.seen) >= c.maxSize {
			c.evictOldest()
		}
		entry = &cacheEntry[V]{element: c.order.PushBack(key)}
		c.seen[key] = entry
	} else {
		c.order.MoveToBack(entry.element)
	}
	entry.timestamp = time.Now()
	entry.value = value
	entry.done = true
}

// Release drops a reservation without storing a result, so the key can be
// retried. Completed entries are left alone.
func (c *Cache[V]) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok && !entry.done {
		c.removeLocked(key, entry)
	}
}

// Len returns the number of tracked keys, expired ones included until cleanup.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache[V]) removeLocked(key string, entry *cacheEntry[V]) {
	c.order.Remove(entry.element)
	delete(c.seen, key)
}

// evictOldest removes the oldest completed entry. In-flight reservations
// are never evicted; if every entry is in flight the cache grows past
// maxSize until one completes or is released.
// Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	for e := c.order.Front(); e != nil; e = e.Next() {
		key, _ := e.Value.(string)
		if entry, ok := c.seen[key]; ok && entry.done {
			c.removeLocked(key, entry)
			return
		}
	}
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache[V]) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache[V]) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.removeLocked(key, entry)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
