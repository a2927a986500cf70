package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/revenue/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCacheWithClock[string, int](clk.Now)

	c.Set("wtr", 1, time.Minute)
	c.Set("prk", 2, 0)

	v, ok := c.Get("wtr")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.Advance(2 * time.Minute)

	_, ok = c.Get("wtr")
	assert.False(t, ok)

	v, ok = c.Get("prk")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.Purge()
	_, ok = c.Get("prk")
	assert.False(t, ok)
}

func TestNoopCache(t *testing.T) {
	var c Cache[string, int] = NoopCache[string, int]{}
	c.Set("a", 1, time.Minute)
	_, ok := c.Get("a")
	assert.False(t, ok)
}
