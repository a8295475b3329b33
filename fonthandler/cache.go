package fonthandler

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fontserve/fontserve/errors"
	"github.com/fontserve/fontserve/font"
)

// dataCache is a bounded DataKey → value LRU mapping. All access is
// serialized by Handler's mutex, so the cache itself does no locking of
// its own.
type dataCache struct {
	lru *lru.Cache[font.DataKey, any]
}

func newDataCache(maxEntries int) (*dataCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c, err := lru.New[font.DataKey, any](maxEntries)
	if err != nil {
		return nil, errors.Wrap(err, "fonthandler: create LRU cache")
	}
	return &dataCache{lru: c}, nil
}

func (c *dataCache) get(key font.DataKey) (any, bool) {
	return c.lru.Get(key)
}

func (c *dataCache) insert(key font.DataKey, value any) {
	c.lru.Add(key, value)
}

// remove is idempotent: removing an absent key is a no-op.
func (c *dataCache) remove(key font.DataKey) {
	c.lru.Remove(key)
}

func (c *dataCache) keys() []font.DataKey {
	return c.lru.Keys()
}
