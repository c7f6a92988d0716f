// Command craftsql manages content-addressed SQLite page stores: local
// directories, named roots/branches, and the network cache layer.
package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"
)

const version = "0.1.0"

// CLI defines craftsql's noun-first command groups.
var CLI struct {
	Store    StoreGroup    `cmd:"" help:"Local store operations"`
	Root     RootGroup     `cmd:"" help:"Root pointer operations"`
	Snapshot SnapshotGroup `cmd:"" help:"Named snapshot and branch operations"`
	Cache    CacheGroup    `cmd:"" help:"Caching layer operations"`
	Version  VersionCmd    `cmd:"" help:"Print version information"`
}

// StoreGroup holds store-level inspection commands.
type StoreGroup struct {
	Info StoreInfoCmd `cmd:"" help:"Show store directory, default root and named roots"`
}

// RootGroup holds default root pointer commands.
type RootGroup struct {
	Show  RootShowCmd  `cmd:"" help:"Show the current default root"`
	Set   RootSetCmd   `cmd:"" help:"Set the default root"`
	Clear RootClearCmd `cmd:"" help:"Clear the default root"`
}

// SnapshotGroup holds named-root and branch commands.
type SnapshotGroup struct {
	Create  SnapshotCreateCmd  `cmd:"" help:"Record the current root under a name"`
	List    SnapshotListCmd    `cmd:"" help:"List named roots"`
	Restore SnapshotRestoreCmd `cmd:"" help:"Set the default root to a named root"`
	Rm      SnapshotRmCmd      `cmd:"" help:"Remove a named root"`
	Branch  BranchCreateCmd    `cmd:"" help:"Create a named root from another root or name"`
	Export  SnapshotExportCmd  `cmd:"" help:"Export a named root's reachable pages to a tar.xz archive"`
	Import  SnapshotImportCmd  `cmd:"" help:"Import a tar.xz archive, recording its root under a name"`
}

// CacheGroup holds caching-layer inspection and maintenance commands.
type CacheGroup struct {
	Stats    CacheStatsCmd    `cmd:"" help:"Show the caching layer's page hit/miss stats"`
	Refresh  CacheRefreshCmd  `cmd:"" help:"Force a root cache refresh from the network"`
	Prefetch CachePrefetchCmd `cmd:"" help:"Prefetch the current root's pages into the local cache"`
}

// VersionCmd prints the CLI's version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("craftsql"),
		kong.Description("Content-addressed page store for SQLite-family databases"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run(runContext{ctx: context.Background()})
	ctx.FatalIfErrorf(err)
}

// runContext carries the background context into every command's Run,
// following kong's bind-a-value-to-Run convention.
type runContext struct {
	ctx context.Context
}
