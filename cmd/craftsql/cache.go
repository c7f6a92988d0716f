package main

import (
	"context"
	"fmt"

	"github.com/craft-ec/craftsql/core/cachestore"
	"github.com/craft-ec/craftsql/core/daemonrpc"
	craftsqlerrors "github.com/craft-ec/craftsql/core/errors"
	"github.com/craft-ec/craftsql/core/localstore"
	"github.com/craft-ec/craftsql/core/netstore"
)

// openCachingStore wires a local disk cache over a daemon-backed
// network store, the CLI's view of the caching layer.
func openCachingStore(ctx context.Context, dir, socketPath string) (*cachestore.Store[*localstore.Store, *netstore.Store], error) {
	local, err := localstore.New(dir)
	if err != nil {
		return nil, craftsqlerrors.Wrap(err, "open local store")
	}

	backend := daemonrpc.New(socketPath)
	remote, err := netstore.New(dir+".network-cache", backend)
	if err != nil {
		return nil, craftsqlerrors.Wrap(err, "open network store")
	}

	return cachestore.New[*localstore.Store, *netstore.Store](ctx, local, remote, cachestore.DefaultConfig())
}

// CacheStatsCmd prints the caching layer's hit/miss stats.
type CacheStatsCmd struct {
	Dir    string `arg:"" help:"Local store directory" type:"path"`
	Socket string `default:"/tmp/craftobj.sock" help:"Daemon socket path"`
}

func (c *CacheStatsCmd) Run(rc runContext) error {
	store, err := openCachingStore(rc.ctx, c.Dir, c.Socket)
	if err != nil {
		return err
	}
	stats := store.Stats()
	fmt.Printf("hits:     %d\n", stats.Hits.Load())
	fmt.Printf("misses:   %d\n", stats.Misses.Load())
	fmt.Printf("hit rate: %.1f%%\n", stats.HitRate()*100)
	return nil
}

// CacheRefreshCmd forces a root cache refresh from the network.
type CacheRefreshCmd struct {
	Dir    string `arg:"" help:"Local store directory" type:"path"`
	Socket string `default:"/tmp/craftobj.sock" help:"Daemon socket path"`
}

func (c *CacheRefreshCmd) Run(rc runContext) error {
	store, err := openCachingStore(rc.ctx, c.Dir, c.Socket)
	if err != nil {
		return err
	}
	root, ok, err := store.CurrentRoot(rc.ctx)
	if err != nil {
		return craftsqlerrors.Wrap(err, "refresh root")
	}
	if !ok {
		fmt.Println("(no root)")
		return nil
	}
	fmt.Println(root)
	return nil
}

// CachePrefetchCmd prefetches the current root's pages into the local
// cache.
type CachePrefetchCmd struct {
	Dir    string `arg:"" help:"Local store directory" type:"path"`
	Socket string `default:"/tmp/craftobj.sock" help:"Daemon socket path"`
}

func (c *CachePrefetchCmd) Run(rc runContext) error {
	store, err := openCachingStore(rc.ctx, c.Dir, c.Socket)
	if err != nil {
		return err
	}
	if err := store.Prefetch(rc.ctx); err != nil {
		return craftsqlerrors.Wrap(err, "prefetch")
	}
	return nil
}
