// ABOUTME: Tests for the duplicate-message suppression cache
// ABOUTME: Validates window expiry, per-session isolation, eviction, and Forget

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_FirstSightingIsNotDuplicate(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("s1", "m1"))
	assert.True(t, c.Seen("s1", "m1"))
}

func TestCache_SessionsAreIsolated(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("s1", "m1"))
	// Same message id on another session is a different delivery.
	assert.False(t, c.Seen("s2", "m1"))
}

func TestCache_WindowExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.Seen("s1", "m1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen("s1", "m1"))
}

func TestCache_Forget(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	c.Seen("s1", "m1")
	c.Seen("s1", "m2")
	c.Seen("s2", "m1")

	c.Forget("s1")

	assert.False(t, c.Seen("s1", "m1"))
	assert.False(t, c.Seen("s1", "m2"))
	assert.True(t, c.Seen("s2", "m1"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(5*time.Minute, 3)
	defer c.Close()

	c.Seen("s1", "m1")
	c.Seen("s1", "m2")
	c.Seen("s1", "m3")
	c.Seen("s1", "m4") // evicts m1

	assert.False(t, c.Seen("s1", "m1"))
	assert.True(t, c.Seen("s1", "m3"))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			session := fmt.Sprintf("s%d", n)
			for m := 0; m < 100; m++ {
				c.Seen(session, fmt.Sprintf("m%d", m))
			}
			c.Forget(session)
		}(i)
	}
	wg.Wait()
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
