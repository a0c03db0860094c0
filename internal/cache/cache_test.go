package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() *Cache {
	return New(Config{
		MaxEntries: 3,
		FastTTL:    20 * time.Millisecond,
		NormalTTL:  time.Minute,
		SlowTTL:    time.Minute,
		StatusTTL:  time.Minute,
	})
}

func TestGetSet_RoundTrip(t *testing.T) {
	c := newTestCache()
	c.Set("k1", []byte("v1"), ClassNormal)

	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestSet_NilValueNeverCached(t *testing.T) {
	c := newTestCache()
	c.Set("k1", nil, ClassNormal)

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	c := newTestCache()
	c.Set("k1", []byte("v1"), ClassFast)

	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestSet_EvictsLeastRecentlyUsedBeyondCapacity(t *testing.T) {
	c := newTestCache()
	c.Set("a", []byte("1"), ClassNormal)
	c.Set("b", []byte("2"), ClassNormal)
	c.Set("c", []byte("3"), ClassNormal)

	// touch "a" so it's most-recently-used
	_, _ = c.Get("a")

	c.Set("d", []byte("4"), ClassNormal)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as least recently used")

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)
}

func TestInvalidateTag_RemovesTaggedEntriesOnly(t *testing.T) {
	c := newTestCache()
	c.Set("a", []byte("1"), ClassNormal, "ticker:005930")
	c.Set("b", []byte("2"), ClassNormal, "ticker:000660")

	removed := c.InvalidateTag("ticker:005930")
	assert.Equal(t, 1, removed)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestStats_TracksHitsMissesEvictions(t *testing.T) {
	c := newTestCache()
	c.Set("a", []byte("1"), ClassNormal)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}
