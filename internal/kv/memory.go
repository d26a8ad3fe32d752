// ABOUTME: In-memory implementation of the kv.Client interface with TTL support
// ABOUTME: Used by tests and single-node dev deployments without a Redis instance

package kv

import (
	"context"
	"sync"
	"time"
)

// memoryEntry is a scalar value with an optional absolute expiry.
type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryClient is a volatile Client backed by process-local maps. It is safe
// for concurrent use. Expired entries are dropped lazily on access, so no
// background goroutine is needed.
type MemoryClient struct {
	mu     sync.RWMutex
	values map[string]memoryEntry
	hashes map[string]map[string]string
	expiry map[string]time.Time // hash-key expiry (scalars carry their own)
	now    func() time.Time
}

// NewMemoryClient constructs an empty in-memory client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		values: make(map[string]memoryEntry),
		hashes: make(map[string]map[string]string),
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Get fetches a scalar value, dropping it first if its TTL has passed.
func (c *MemoryClient) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.values[key]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.values, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

// Set stores a scalar value with an optional TTL.
func (c *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.values[key] = entry
	return nil
}

// Del removes scalar and hash keys.
func (c *MemoryClient) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.values, key)
		delete(c.hashes, key)
		delete(c.expiry, key)
	}
	return nil
}

// HGet fetches one hash field.
func (c *MemoryClient) HGet(_ context.Context, key, field string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hashExpiredLocked(key) {
		return "", ErrNotFound
	}
	fields, ok := c.hashes[key]
	if !ok {
		return "", ErrNotFound
	}
	val, ok := fields[field]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

// HSet upserts one hash field.
func (c *MemoryClient) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// An expired hash is dropped first so the write starts a fresh one.
	c.hashExpiredLocked(key)

	fields, ok := c.hashes[key]
	if !ok {
		fields = make(map[string]string)
		c.hashes[key] = fields
	}
	fields[field] = value
	return nil
}

// HDel removes hash fields.
func (c *MemoryClient) HDel(_ context.Context, key string, fields ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.hashes[key]
	if !ok {
		return nil
	}
	for _, field := range fields {
		delete(existing, field)
	}
	if len(existing) == 0 {
		delete(c.hashes, key)
		delete(c.expiry, key)
	}
	return nil
}

// ExpireIn sets or refreshes a key's TTL.
func (c *MemoryClient) ExpireIn(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(ttl)
	if entry, ok := c.values[key]; ok {
		entry.expiresAt = deadline
		c.values[key] = entry
	}
	if _, ok := c.hashes[key]; ok {
		c.expiry[key] = deadline
	}
	return nil
}

// Close is a no-op for the in-memory client.
func (c *MemoryClient) Close() error {
	return nil
}

// hashExpiredLocked drops an expired hash and reports whether it was expired.
// Must be called with mu held.
func (c *MemoryClient) hashExpiredLocked(key string) bool {
	deadline, ok := c.expiry[key]
	if !ok || c.now().Before(deadline) {
		return false
	}
	delete(c.hashes, key)
	delete(c.expiry, key)
	return true
}
