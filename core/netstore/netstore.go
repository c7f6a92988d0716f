// Package netstore implements a network-backed PageStore in bundle mode:
// puts land in a local disk cache only; a root update bundles every live
// page into a single blob and publishes it as one remote object.
package netstore

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/craft-ec/craftsql/core/localstore"
	"github.com/craft-ec/craftsql/core/pagestore"
	"github.com/craft-ec/craftsql/internal/logging"
)

// NetworkBackend abstracts the remote object network a Store publishes
// bundles to and fetches them from.
type NetworkBackend interface {
	// PublishPage publishes data to the network, returning its CID.
	PublishPage(ctx context.Context, data []byte) (pagestore.CID, error)

	// FetchPage fetches data by CID from the network.
	FetchPage(ctx context.Context, cid pagestore.CID) ([]byte, error)

	// GetRoot returns the current root CID known to the network, if any.
	GetRoot(ctx context.Context) (pagestore.CID, bool, error)

	// SetRoot publishes the root CID to the network.
	SetRoot(ctx context.Context, cid pagestore.CID) error

	// GetNamedRoot returns a named root from the network, if any.
	GetNamedRoot(ctx context.Context, name string) (pagestore.CID, bool, error)

	// SetNamedRoot publishes a named root to the network.
	SetNamedRoot(ctx context.Context, name string, cid pagestore.CID) error

	// RemoveNamedRoot removes a named root from the network.
	RemoveNamedRoot(ctx context.Context, name string) (bool, error)

	// ListNamedRoots lists every named root known to the network.
	ListNamedRoots(ctx context.Context) ([]pagestore.NamedRoot, error)
}

// Stats counts cache hits and misses for observability.
type Stats struct {
	Hits   atomic.Uint64
	Misses atomic.Uint64
}

// Store is a bundle-mode, network-backed PageStore: Put only touches the
// local cache; UpdateRoot bundles every live page and publishes the
// bundle as the new root.
type Store struct {
	local   *localstore.Store
	network NetworkBackend
	stats   Stats
}

var _ pagestore.PageStore = (*Store)(nil)

// New creates a network-backed store with a local disk cache at dir.
func New(dir string, network NetworkBackend) (*Store, error) {
	local, err := localstore.New(dir)
	if err != nil {
		return nil, err
	}
	return &Store{local: local, network: network}, nil
}

// Stats returns the store's hit/miss counters.
func (s *Store) Stats() *Stats {
	return &s.stats
}

// Get implements pagestore.PageStore with the cache-miss fallback chain:
// local cache, then unbundle the current root if not yet cached, retry
// local, then a direct fetch as a last resort.
func (s *Store) Get(ctx context.Context, cid pagestore.CID) (pagestore.Page, error) {
	if page, err := s.local.Get(ctx, cid); err == nil {
		s.stats.Hits.Add(1)
		return page, nil
	} else if !pagestore.IsNotFound(err) {
		return nil, err
	}
	s.stats.Misses.Add(1)

	root, ok, err := s.local.CurrentRoot(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		if _, err := s.local.Get(ctx, root); pagestore.IsNotFound(err) {
			if err := s.fetchAndUnbundle(ctx, root); err != nil {
				return nil, err
			}
		}
	}

	if page, err := s.local.Get(ctx, cid); err == nil {
		return page, nil
	} else if !pagestore.IsNotFound(err) {
		return nil, err
	}

	data, err := s.network.FetchPage(ctx, cid)
	if err != nil {
		return nil, pagestore.ErrStorageWrap("direct fetch", err)
	}
	actual := pagestore.CIDOf(data)
	if actual != cid {
		return nil, pagestore.ErrStorage("CID mismatch after fetch")
	}
	if _, err := s.local.Put(ctx, pagestore.Page(data)); err != nil {
		return nil, err
	}
	return pagestore.Page(data), nil
}

// fetchAndUnbundle fetches the bundle at root from the network, verifies
// its integrity, and caches every page and the page table locally.
func (s *Store) fetchAndUnbundle(ctx context.Context, root pagestore.CID) error {
	data, err := s.network.FetchPage(ctx, root)
	if err != nil {
		return pagestore.ErrStorageWrap("fetch bundle", err)
	}
	if pagestore.CIDOf(data) != root {
		return pagestore.ErrStorage("CID mismatch on bundle fetch")
	}

	pt, _, blocks, err := unpackBundle(data)
	if err != nil {
		return pagestore.ErrStorageWrap("unpack bundle", err)
	}

	for i, block := range blocks {
		if pt.Get(i) == nil {
			continue
		}
		if _, err := s.local.Put(ctx, pagestore.Page(block)); err != nil {
			return err
		}
	}

	ptBytes, err := pt.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := s.local.Put(ctx, pagestore.Page(ptBytes)); err != nil {
		return err
	}
	return s.local.UpdateRoot(ctx, root)
}

// Put implements pagestore.PageStore. Bundle mode only writes locally;
// the page reaches the network when the page table it belongs to is
// bundled and published by UpdateRoot.
func (s *Store) Put(ctx context.Context, page pagestore.Page) (pagestore.CID, error) {
	return s.local.Put(ctx, page)
}

// UpdateRoot implements pagestore.PageStore: reads the just-committed
// page table from the local cache, bundles every live page, publishes
// the bundle, and stores the bundle's CID as the new root.
func (s *Store) UpdateRoot(ctx context.Context, ptCID pagestore.CID) error {
	if ptCID.IsNil() {
		if err := s.local.UpdateRoot(ctx, ptCID); err != nil {
			return err
		}
		return s.network.SetRoot(ctx, ptCID)
	}

	ptPage, err := s.local.Get(ctx, ptCID)
	if err != nil {
		return err
	}
	pt, err := pagestore.PageTableFromBytes(ptPage)
	if err != nil {
		return pagestore.ErrStorageWrap("parse committed page table", err)
	}

	pageSize := 0
	blocks := make([][]byte, pt.Len())
	for i := 0; i < pt.Len(); i++ {
		cid := pt.Get(i)
		if cid == nil {
			blocks[i] = nil
			continue
		}
		page, err := s.local.Get(ctx, *cid)
		if err != nil {
			return err
		}
		if pageSize == 0 {
			pageSize = len(page)
		}
		blocks[i] = page
	}
	if pageSize == 0 {
		pageSize = 4096
	}

	bundle, err := packBundle(pt, pageSize, blocks)
	if err != nil {
		return pagestore.ErrStorageWrap("pack bundle", err)
	}

	bundleCID, err := s.network.PublishPage(ctx, bundle)
	if err != nil {
		return pagestore.ErrStorageWrap("publish bundle", err)
	}

	if err := s.local.UpdateRoot(ctx, bundleCID); err != nil {
		return err
	}
	if err := s.network.SetRoot(ctx, bundleCID); err != nil {
		return err
	}
	logging.BundlePublished(bundleCID.String(), len(bundle), pt.Len())
	return nil
}

// CurrentRoot implements pagestore.PageStore, preferring the local cache,
// falling back to the network.
func (s *Store) CurrentRoot(ctx context.Context) (pagestore.CID, bool, error) {
	cid, ok, err := s.local.CurrentRoot(ctx)
	if err != nil {
		return pagestore.CID{}, false, err
	}
	if ok {
		return cid, true, nil
	}
	return s.network.GetRoot(ctx)
}

// SetNamedRoot implements pagestore.PageStore, writing both sides.
func (s *Store) SetNamedRoot(ctx context.Context, name string, cid pagestore.CID) error {
	if err := s.local.SetNamedRoot(ctx, name, cid); err != nil {
		return err
	}
	return s.network.SetNamedRoot(ctx, name, cid)
}

// GetNamedRoot implements pagestore.PageStore, preferring local, falling
// back to the network.
func (s *Store) GetNamedRoot(ctx context.Context, name string) (pagestore.CID, bool, error) {
	cid, ok, err := s.local.GetNamedRoot(ctx, name)
	if err != nil {
		return pagestore.CID{}, false, err
	}
	if ok {
		return cid, true, nil
	}
	return s.network.GetNamedRoot(ctx, name)
}

// RemoveNamedRoot implements pagestore.PageStore, removing from both
// sides.
func (s *Store) RemoveNamedRoot(ctx context.Context, name string) (bool, error) {
	localRemoved, err := s.local.RemoveNamedRoot(ctx, name)
	if err != nil {
		return false, err
	}
	netRemoved, err := s.network.RemoveNamedRoot(ctx, name)
	if err != nil {
		return localRemoved, err
	}
	return localRemoved || netRemoved, nil
}

// ListNamedRoots implements pagestore.PageStore, merging both sets (the
// network wins on name conflicts).
func (s *Store) ListNamedRoots(ctx context.Context) ([]pagestore.NamedRoot, error) {
	local, err := s.local.ListNamedRoots(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.network.ListNamedRoots(ctx)
	if err != nil {
		return local, nil
	}

	merged := make(map[string]pagestore.CID, len(local)+len(remote))
	for _, r := range local {
		merged[r.Name] = r.CID
	}
	for _, r := range remote {
		merged[r.Name] = r.CID
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]pagestore.NamedRoot, 0, len(names))
	for _, name := range names {
		out = append(out, pagestore.NamedRoot{Name: name, CID: merged[name]})
	}
	return out, nil
}
