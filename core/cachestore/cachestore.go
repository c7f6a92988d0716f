// Package cachestore wraps a local/remote PageStore pair with a TTL'd
// root cache, an optional hot page cache, and optional open-time
// prefetch, grounded on store-cached's CachingPageStore.
package cachestore

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/craft-ec/craftsql/core/hotcache"
	"github.com/craft-ec/craftsql/core/pagestore"
	"github.com/craft-ec/craftsql/internal/cache"
	"github.com/craft-ec/craftsql/internal/logging"
)

// rootCacheKey is the single key the root TTL cache is ever keyed on;
// there is exactly one current root per store.
const rootCacheKey = "root"

// Config controls the caching layer's behavior.
type Config struct {
	// RootTTL is how long a cached root stays valid before CurrentRoot
	// re-reads it from the remote. Zero disables caching (always refresh).
	RootTTL time.Duration

	// PrefetchOnOpen fetches the current root's page table and warms the
	// local cache with its pages when the store is constructed.
	PrefetchOnOpen bool

	// MaxPrefetchPages bounds how many pages PrefetchOnOpen fetches.
	// Zero means unbounded.
	MaxPrefetchPages int

	// HotPages sizes an optional in-memory LRU in front of local disk
	// reads. Zero disables the hot cache.
	HotPages int
}

// DefaultConfig returns the caching layer's default configuration:
// a 300 second root TTL, no open-time prefetch, unbounded prefetch cap,
// and no hot page cache.
func DefaultConfig() Config {
	return Config{
		RootTTL:          300 * time.Second,
		PrefetchOnOpen:   false,
		MaxPrefetchPages: 0,
		HotPages:         0,
	}
}

// Stats counts cache hits and misses for observability.
type Stats struct {
	Hits   atomic.Uint64
	Misses atomic.Uint64
}

// HitRate returns the fraction of Get calls served without reaching the
// remote store, or 0 if there have been no calls yet.
func (s *Stats) HitRate() float64 {
	hits := s.Hits.Load()
	total := hits + s.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Store layers a TTL'd root cache and optional hot page cache over a
// local/remote pagestore.PageStore pair.
type Store[L, R pagestore.PageStore] struct {
	local  L
	remote R
	config Config

	roots *cache.TTLCache[string, pagestore.CID]
	hot   *hotcache.Cache
	stats Stats
}

// New constructs a caching store over local and remote, applying config.
// If config.PrefetchOnOpen is set, it prefetches the current root's
// pages immediately.
func New[L, R pagestore.PageStore](ctx context.Context, local L, remote R, config Config) (*Store[L, R], error) {
	s := &Store[L, R]{
		local:  local,
		remote: remote,
		config: config,
		roots:  cache.New[string, pagestore.CID](config.RootTTL),
	}
	if config.HotPages > 0 {
		s.hot = hotcache.New(config.HotPages)
	}
	if config.PrefetchOnOpen {
		if err := s.Prefetch(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Stats returns the store's hit/miss counters.
func (s *Store[L, R]) Stats() *Stats {
	return &s.stats
}

// Get reads a page local-first, caching remote reads locally on a miss.
func (s *Store[L, R]) Get(ctx context.Context, cid pagestore.CID) (pagestore.Page, error) {
	if s.hot != nil {
		if page, ok := s.hot.Get(cid); ok {
			s.stats.Hits.Add(1)
			logging.CacheEvent("hotcache", "hit", cid.String())
			return page, nil
		}
	}

	if page, err := s.local.Get(ctx, cid); err == nil {
		s.stats.Hits.Add(1)
		logging.CacheEvent("local", "hit", cid.String())
		if s.hot != nil {
			s.hot.Put(cid, page)
		}
		return page, nil
	} else if !pagestore.IsNotFound(err) {
		return nil, err
	}

	s.stats.Misses.Add(1)
	logging.CacheEvent("local", "miss", cid.String())
	page, err := s.remote.Get(ctx, cid)
	if err != nil {
		return nil, err
	}
	if _, err := s.local.Put(ctx, page); err != nil {
		return nil, err
	}
	if s.hot != nil {
		s.hot.Put(cid, page)
	}
	return page, nil
}

// Put writes through to both the local and remote store.
func (s *Store[L, R]) Put(ctx context.Context, page pagestore.Page) (pagestore.CID, error) {
	cid, err := s.local.Put(ctx, page)
	if err != nil {
		return pagestore.CID{}, err
	}
	if _, err := s.remote.Put(ctx, page); err != nil {
		return pagestore.CID{}, err
	}
	if s.hot != nil {
		s.hot.Put(cid, page)
	}
	return cid, nil
}

// UpdateRoot writes the new root through to both the local and remote
// store and refreshes the root cache.
func (s *Store[L, R]) UpdateRoot(ctx context.Context, cid pagestore.CID) error {
	if err := s.local.UpdateRoot(ctx, cid); err != nil {
		return err
	}
	if err := s.remote.UpdateRoot(ctx, cid); err != nil {
		return err
	}
	s.roots.Set(rootCacheKey, cid)
	logging.RootUpdated("cachestore", "", cid.String())
	return nil
}

// CurrentRoot returns the cached root if the TTL has not expired,
// otherwise refreshes from the remote store.
func (s *Store[L, R]) CurrentRoot(ctx context.Context) (pagestore.CID, bool, error) {
	if cid, ok := s.roots.Get(rootCacheKey); ok {
		return cid, true, nil
	}
	return s.refreshRoot(ctx)
}

func (s *Store[L, R]) refreshRoot(ctx context.Context) (pagestore.CID, bool, error) {
	cid, ok, err := s.remote.CurrentRoot(ctx)
	if err != nil {
		return pagestore.CID{}, false, err
	}
	if !ok {
		return pagestore.CID{}, false, nil
	}
	s.roots.Set(rootCacheKey, cid)
	return cid, true, nil
}

// SetNamedRoot writes through to both stores.
func (s *Store[L, R]) SetNamedRoot(ctx context.Context, name string, cid pagestore.CID) error {
	if err := s.local.SetNamedRoot(ctx, name, cid); err != nil {
		return err
	}
	return s.remote.SetNamedRoot(ctx, name, cid)
}

// GetNamedRoot prefers the local store, falling back to remote.
func (s *Store[L, R]) GetNamedRoot(ctx context.Context, name string) (pagestore.CID, bool, error) {
	cid, ok, err := s.local.GetNamedRoot(ctx, name)
	if err != nil {
		return pagestore.CID{}, false, err
	}
	if ok {
		return cid, true, nil
	}
	return s.remote.GetNamedRoot(ctx, name)
}

// RemoveNamedRoot removes from both stores, reporting true if either
// side had the name.
func (s *Store[L, R]) RemoveNamedRoot(ctx context.Context, name string) (bool, error) {
	localRemoved, err := s.local.RemoveNamedRoot(ctx, name)
	if err != nil {
		return false, err
	}
	remoteRemoved, err := s.remote.RemoveNamedRoot(ctx, name)
	if err != nil {
		return localRemoved, err
	}
	return localRemoved || remoteRemoved, nil
}

// ListNamedRoots merges both sets of named roots; the remote store wins
// on name conflicts.
func (s *Store[L, R]) ListNamedRoots(ctx context.Context) ([]pagestore.NamedRoot, error) {
	local, err := s.local.ListNamedRoots(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.remote.ListNamedRoots(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]pagestore.CID, len(local)+len(remote))
	for _, r := range local {
		merged[r.Name] = r.CID
	}
	for _, r := range remote {
		merged[r.Name] = r.CID
	}

	names := sortedKeys(merged)
	out := make([]pagestore.NamedRoot, 0, len(names))
	for _, name := range names {
		out = append(out, pagestore.NamedRoot{Name: name, CID: merged[name]})
	}
	return out, nil
}

// Prefetch reads the current remote root's page table and warms the
// local cache with every page it references, up to MaxPrefetchPages.
// Pages already cached locally are not fetched again, and a page whose
// remote fetch fails is skipped.
func (s *Store[L, R]) Prefetch(ctx context.Context) error {
	root, ok, err := s.remote.CurrentRoot(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	ptPage, err := s.remote.Get(ctx, root)
	if err != nil {
		return err
	}
	pt, err := pagestore.PageTableFromBytes(ptPage)
	if err != nil {
		return pagestore.ErrStorageWrap("parse page table for prefetch", err)
	}
	if _, err := s.local.Put(ctx, ptPage); err != nil {
		return err
	}

	cids := make([]pagestore.CID, 0, pt.Len())
	for i := 0; i < pt.Len(); i++ {
		if cid := pt.Get(i); cid != nil {
			cids = append(cids, *cid)
		}
	}
	if s.config.MaxPrefetchPages > 0 && len(cids) > s.config.MaxPrefetchPages {
		cids = cids[:s.config.MaxPrefetchPages]
	}

	fetched := 0
	for _, cid := range cids {
		if _, err := s.local.Get(ctx, cid); err == nil {
			continue
		} else if !pagestore.IsNotFound(err) {
			return err
		}
		page, err := s.remote.Get(ctx, cid)
		if err != nil {
			continue
		}
		if _, err := s.local.Put(ctx, page); err != nil {
			return err
		}
		fetched++
	}

	logging.PrefetchCompleted(len(cids), fetched)
	return nil
}

func sortedKeys(m map[string]pagestore.CID) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
