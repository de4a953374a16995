package statestore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/furu/internal/statestore"
)

func TestTTLCache_ExpiresAfterDuration(t *testing.T) {
	t.Parallel()

	c := statestore.NewTTLCache(statestore.CacheDuration, 10*time.Millisecond)
	c.Set("/a", statestore.Default())

	_, ok := c.Get("/a")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)
	_, ok = c.Get("/a")
	assert.False(t, ok)
}

func TestTTLCache_NeverModeDoesNotCache(t *testing.T) {
	t.Parallel()

	c := statestore.NewTTLCache(statestore.CacheNever, time.Hour)
	c.Set("/a", statestore.Default())

	_, ok := c.Get("/a")
	assert.False(t, ok)
}

func TestTTLCache_InvalidateRemovesEntry(t *testing.T) {
	t.Parallel()

	c := statestore.NewTTLCache(statestore.CacheForever, 0)
	c.Set("/a", statestore.Default())
	c.Invalidate("/a")

	_, ok := c.Get("/a")
	assert.False(t, ok)
}
