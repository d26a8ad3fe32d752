// ABOUTME: Tests for the in-memory kv client used by tests and dev deployments
// ABOUTME: Validates scalar TTL expiry, hash field access, and deletion semantics

package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_GetSet(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestMemoryClient_ScalarTTL(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	// Advance past the TTL
	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryClient_ExpireInRefreshesDeadline(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	// Refresh just before expiry, then advance past the original deadline.
	now = now.Add(50 * time.Second)
	require.NoError(t, c.ExpireIn(ctx, "k", time.Minute))
	now = now.Add(50 * time.Second)

	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestMemoryClient_HashFields(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	_, err := c.HGet(ctx, "h", "f")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.HSet(ctx, "h", "f1", "v1"))
	require.NoError(t, c.HSet(ctx, "h", "f2", "v2"))

	val, err := c.HGet(ctx, "h", "f1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)

	_, err = c.HGet(ctx, "h", "f3")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.HDel(ctx, "h", "f1"))
	_, err = c.HGet(ctx, "h", "f1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Sibling field untouched
	val, err = c.HGet(ctx, "h", "f2")
	require.NoError(t, err)
	assert.Equal(t, "v2", val)
}

func TestMemoryClient_HashTTL(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.HSet(ctx, "h", "f", "v"))
	require.NoError(t, c.ExpireIn(ctx, "h", time.Minute))

	now = now.Add(2 * time.Minute)
	_, err := c.HGet(ctx, "h", "f")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryClient_HSetAfterExpiryStartsFresh(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.HSet(ctx, "h", "old", "stale"))
	require.NoError(t, c.ExpireIn(ctx, "h", time.Minute))

	// Writing into an expired hash drops the stale fields and the old TTL.
	now = now.Add(2 * time.Minute)
	require.NoError(t, c.HSet(ctx, "h", "new", "fresh"))

	_, err := c.HGet(ctx, "h", "old")
	assert.ErrorIs(t, err, ErrNotFound)

	val, err := c.HGet(ctx, "h", "new")
	require.NoError(t, err)
	assert.Equal(t, "fresh", val)
}

func TestMemoryClient_Del(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.HSet(ctx, "h", "f", "v"))

	require.NoError(t, c.Del(ctx, "k", "h", "not-there"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.HGet(ctx, "h", "f")
	assert.ErrorIs(t, err, ErrNotFound)
}
