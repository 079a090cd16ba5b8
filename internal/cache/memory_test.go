package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewMemoryCache[string]().WithClock(func() time.Time { return now })

	c.Set("a", "alpha", time.Minute)
	c.Set("skip", "never stored", 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", v)

	_, ok = c.Get("skip")
	assert.False(t, ok)

	now = now.Add(time.Minute + time.Nanosecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Purge())
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache[int]()
	c.Set("n", 42, time.Hour)
	c.Delete("n")
	_, ok := c.Get("n")
	assert.False(t, ok)
}
