// ABOUTME: TTL cache suppressing duplicate inbound message deliveries per session
// ABOUTME: The chat network redelivers messages on reconnect; seen ids are dropped

package dedupe

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// seenEntry tracks when a message id was first observed plus its position in
// the eviction order.
type seenEntry struct {
	at      time.Time
	element *list.Element
}

// Cache remembers recently observed (sessionID, messageID) pairs so a
// redelivered message produces exactly one webhook. Entries expire after the
// configured window and the cache is size-capped with oldest-first eviction.
// Safe for concurrent use across sessions.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*seenEntry
	order   *list.List // keys oldest-first
	window  time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache that forgets message ids after window, holding at most
// maxSize entries. A background goroutine sweeps expired entries.
func New(window time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*seenEntry),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen atomically checks whether the message was already observed within the
// window, marking it if not. Returns true for duplicates.
func (c *Cache) Seen(sessionID, messageID string) bool {
	key := sessionID + ":" + messageID

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok && time.Since(entry.at) < c.window {
		return true
	}
	c.markLocked(key)
	return false
}

// Forget drops every entry belonging to sessionID. Called on session
// deletion so a re-created session starts with a clean slate.
func (c *Cache) Forget(sessionID string) {
	prefix := sessionID + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.seen {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// markLocked records a key, evicting the oldest entry at capacity. Must be
// called with mu held.
func (c *Cache) markLocked(key string) {
	if entry, ok := c.seen[key]; ok {
		entry.at = time.Now()
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &seenEntry{
		at:      time.Now(),
		element: c.order.PushBack(key),
	}
}

// sweep periodically removes expired entries until Close.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.at) > c.window {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
