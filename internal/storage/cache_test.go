package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	// "b" is now least recently used
	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.Set("a", 10)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)
}

func TestLRUCache_Expiry(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("x", "1")
	c.Set("y", "2")

	now = now.Add(30 * time.Second)
	c.Set("y", "3")

	now = now.Add(45 * time.Second)
	_, ok := c.Get("x")
	assert.False(t, ok, "x expired")

	v, ok := c.Get("y")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, c.CleanupExpired())
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_DeleteClearStats(t *testing.T) {
	c := NewLRUCache[int](0, time.Second)
	assert.Equal(t, 1, c.GetStats().Capacity)

	c.Set("a", 1)
	c.Delete("a")
	assert.Equal(t, 0, c.Len())

	c.Set("b", 2)
	c.Clear()
	_, ok := c.Get("b")
	assert.False(t, ok)
}
