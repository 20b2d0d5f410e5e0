// ABOUTME: Thread-safe TTL cache for deduplicating inbound provider messages.
// ABOUTME: Providers redeliver messages after reconnects; the cache makes handling idempotent.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the timestamp and list element for a cached key.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks provider message IDs that have already been processed.
// It is TTL-based and size-limited; insertion order is kept in a linked
// list so the oldest key can be evicted in O(1) when the cache is full.
type Cache struct {
	mu      sync.RWMutex
	seen    map[string]*entry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Seen returns true if the key has been marked and has not expired.
func (c *Cache) Seen(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.seen[key]
	if !ok {
		return false
	}
	return time.Since(e.seenAt) < c.ttl
}

// Mark records the key as seen, evicting the oldest entry if the cache is full.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// SeenOrMark atomically checks whether a key was already seen and marks it if not.
// Returns true if the key was a duplicate, false if it is new and now marked.
// The single lock acquisition avoids the race a separate Seen/Mark pair would have.
func (c *Cache) SeenOrMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}
	c.markLocked(key)
	return false
}

func (c *Cache) markLocked(key string) {
	if e, ok := c.seen[key]; ok {
		// Refresh: move to the back of the order list
		e.seenAt = time.Now()
		c.order.MoveToBack(e.element)
		return
	}

	for len(c.seen) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		oldest := front.Value.(string)
		c.order.Remove(front)
		delete(c.seen, oldest)
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &entry{seenAt: time.Now(), element: elem}
}

// Len returns the number of entries currently tracked, including expired
// entries not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

// Close stops the background cleanup goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// cleanupLoop periodically removes expired entries until Close is called.
func (c *Cache) cleanupLoop() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.ttl)
	for elem := c.order.Front(); elem != nil; {
		key := elem.Value.(string)
		e := c.seen[key]
		if e.seenAt.After(cutoff) {
			// Entries are ordered oldest-first; the rest are still fresh
			break
		}
		next := elem.Next()
		c.order.Remove(elem)
		delete(c.seen, key)
		elem = next
	}
}
