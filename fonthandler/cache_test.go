package fonthandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fontserve/fontserve/font"
)

func TestDataCacheInsertGetRemove(t *testing.T) {
	c, err := newDataCache(8)
	require.NoError(t, err)

	key := font.GlyphKey("A")
	_, ok := c.get(key)
	assert.False(t, ok)

	c.insert(key, "value")
	v, ok := c.get(key)
	require.True(t, ok)
	assert.Equal(t, "value", v)

	c.remove(key)
	_, ok = c.get(key)
	assert.False(t, ok)
}

func TestDataCacheRemoveOfAbsentKeyIsNoop(t *testing.T) {
	c, err := newDataCache(8)
	require.NoError(t, err)
	assert.NotPanics(t, func() { c.remove(font.GlyphKey("nope")) })
}

func TestDataCacheEvictsLeastRecentlyUsedPastCapacity(t *testing.T) {
	c, err := newDataCache(2)
	require.NoError(t, err)

	c.insert(font.GlyphKey("A"), 1)
	c.insert(font.GlyphKey("B"), 2)
	c.insert(font.GlyphKey("C"), 3)

	_, ok := c.get(font.GlyphKey("A"))
	assert.False(t, ok, "A should have been evicted once the cache exceeded capacity")
}

func TestDataCacheNonPositiveSizeDefaultsToOne(t *testing.T) {
	c, err := newDataCache(0)
	require.NoError(t, err)
	c.insert(font.GlyphKey("A"), 1)
	c.insert(font.GlyphKey("B"), 2)
	_, ok := c.get(font.GlyphKey("A"))
	assert.False(t, ok)
}
