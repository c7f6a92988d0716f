// Package hotcache is a hot in-memory page cache that sits in front of
// a PageStore's local disk cache, adapted from core/cache's generic LRU.
package hotcache

import (
	"github.com/craft-ec/craftsql/core/cache"
	"github.com/craft-ec/craftsql/core/pagestore"
)

// Cache caches pages by CID in an LRU with a bounded entry count.
// Pages are immutable and content-addressed, so entries never need
// invalidation beyond normal LRU eviction.
type Cache struct {
	pages cache.Cache[pagestore.CID, pagestore.Page]
}

// New creates a hot page cache holding up to maxPages entries. A
// maxPages of 0 means unbounded.
func New(maxPages int) *Cache {
	return &Cache{
		pages: cache.NewLRUCache[pagestore.CID, pagestore.Page](cache.Config{
			MaxSize: maxPages,
		}),
	}
}

// Get returns a cached page, if present.
func (c *Cache) Get(cid pagestore.CID) (pagestore.Page, bool) {
	return c.pages.Get(cid)
}

// Put caches a page under its CID.
func (c *Cache) Put(cid pagestore.CID, page pagestore.Page) {
	c.pages.Put(cid, page)
}

// Stats returns the underlying LRU's hit/miss/eviction counters.
func (c *Cache) Stats() cache.Stats {
	return c.pages.Stats()
}
