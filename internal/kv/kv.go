// ABOUTME: Key-value backend abstraction used by the auth state store
// ABOUTME: Defines the Client interface plus the shared error sentinels

package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or hash field does not exist.
var ErrNotFound = errors.New("key not found")

// ErrUnavailable is returned when the backend cannot be reached or times out.
// Callers decide whether to retry; the kv layer never retries on its own.
var ErrUnavailable = errors.New("backend unavailable")

// Client is the minimal surface the gateway needs from a durable key-value
// store: scalar get/set with TTL, hash field access, deletion, and expiry.
// The client is constructed once at process start and injected into every
// component that needs it; there is no package-level default.
type Client interface {
	// Get fetches a scalar value. Returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a scalar value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes keys. Deleting an absent key is not an error.
	Del(ctx context.Context, keys ...string) error

	// HGet fetches one hash field. Returns ErrNotFound if the key or field
	// is absent.
	HGet(ctx context.Context, key, field string) (string, error)

	// HSet upserts one hash field.
	HSet(ctx context.Context, key, field, value string) error

	// HDel removes hash fields. Absent fields are not an error.
	HDel(ctx context.Context, key string, fields ...string) error

	// ExpireIn sets or refreshes a key's TTL. Expiring an absent key is a
	// no-op, not an error.
	ExpireIn(ctx context.Context, key string, ttl time.Duration) error

	// Close releases the underlying connection resources.
	Close() error
}
