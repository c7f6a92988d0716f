package main

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	craftsqlerrors "github.com/craft-ec/craftsql/core/errors"
	"github.com/craft-ec/craftsql/core/localstore"
	"github.com/craft-ec/craftsql/core/pagestore"
)

// SnapshotCreateCmd records the store's current root under name.
type SnapshotCreateCmd struct {
	Dir  string `arg:"" help:"Store directory" type:"path"`
	Name string `arg:"" help:"Snapshot name"`
}

func (c *SnapshotCreateCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}
	root, ok, err := store.CurrentRoot(rc.ctx)
	if err != nil {
		return craftsqlerrors.Wrap(err, "read root")
	}
	if !ok {
		return craftsqlerrors.NewValidation("root", "store has no root to snapshot")
	}
	if err := store.SetNamedRoot(rc.ctx, c.Name, root); err != nil {
		return craftsqlerrors.Wrap(err, "set named root")
	}
	fmt.Printf("%s -> %s\n", c.Name, root)
	return nil
}

// SnapshotListCmd lists all named roots.
type SnapshotListCmd struct {
	Dir string `arg:"" help:"Store directory" type:"path"`
}

func (c *SnapshotListCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}
	roots, err := store.ListNamedRoots(rc.ctx)
	if err != nil {
		return craftsqlerrors.Wrap(err, "list named roots")
	}
	for _, r := range roots {
		fmt.Printf("%-20s %s\n", r.Name, r.CID)
	}
	return nil
}

// SnapshotRestoreCmd sets the store's default root to a named root.
type SnapshotRestoreCmd struct {
	Dir  string `arg:"" help:"Store directory" type:"path"`
	Name string `arg:"" help:"Snapshot name"`
}

func (c *SnapshotRestoreCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}
	root, ok, err := store.GetNamedRoot(rc.ctx, c.Name)
	if err != nil {
		return craftsqlerrors.Wrap(err, "get named root")
	}
	if !ok {
		return craftsqlerrors.NewNotFound("snapshot", c.Name)
	}
	if err := store.UpdateRoot(rc.ctx, root); err != nil {
		return craftsqlerrors.Wrap(err, "update root")
	}
	return nil
}

// SnapshotRmCmd removes a named root.
type SnapshotRmCmd struct {
	Dir  string `arg:"" help:"Store directory" type:"path"`
	Name string `arg:"" help:"Snapshot name"`
}

func (c *SnapshotRmCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}
	removed, err := store.RemoveNamedRoot(rc.ctx, c.Name)
	if err != nil {
		return craftsqlerrors.Wrap(err, "remove named root")
	}
	if !removed {
		return craftsqlerrors.NewNotFound("snapshot", c.Name)
	}
	return nil
}

// BranchCreateCmd creates a named root pointing at an existing root or
// named root, without touching the store's default root.
type BranchCreateCmd struct {
	Dir  string `arg:"" help:"Store directory" type:"path"`
	Name string `arg:"" help:"New branch name"`
	From string `required:"" help:"Source: a root CID or an existing snapshot name"`
}

func (c *BranchCreateCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}

	root, err := resolveRoot(rc.ctx, store, c.From)
	if err != nil {
		return err
	}
	if err := store.SetNamedRoot(rc.ctx, c.Name, root); err != nil {
		return craftsqlerrors.Wrap(err, "set named root")
	}
	fmt.Printf("%s -> %s\n", c.Name, root)
	return nil
}

// resolveRoot interprets ref as a hex CID first, falling back to an
// existing named root.
func resolveRoot(ctx context.Context, store *localstore.Store, ref string) (pagestore.CID, error) {
	if cid, err := pagestore.CIDFromHex(ref); err == nil {
		return cid, nil
	}
	cid, ok, err := store.GetNamedRoot(ctx, ref)
	if err != nil {
		return pagestore.CID{}, craftsqlerrors.Wrapf(err, "resolve %q", ref)
	}
	if !ok {
		return pagestore.CID{}, craftsqlerrors.NewNotFound("root or snapshot", ref)
	}
	return cid, nil
}

// SnapshotExportCmd packs a named root's reachable pages into a tar.xz
// archive, grounded on core/capsule's Pack.
type SnapshotExportCmd struct {
	Dir     string `arg:"" help:"Store directory" type:"path"`
	Name    string `arg:"" help:"Snapshot name"`
	Archive string `arg:"" help:"Output archive path" type:"path"`
}

func (c *SnapshotExportCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}
	root, ok, err := store.GetNamedRoot(rc.ctx, c.Name)
	if err != nil {
		return craftsqlerrors.Wrap(err, "get named root")
	}
	if !ok {
		return craftsqlerrors.NewNotFound("snapshot", c.Name)
	}

	pages, err := reachablePages(rc.ctx, store, root)
	if err != nil {
		return err
	}

	file, err := os.Create(c.Archive)
	if err != nil {
		return craftsqlerrors.NewIO("create", c.Archive, err)
	}
	defer file.Close()

	xzWriter, err := xz.NewWriter(file)
	if err != nil {
		return craftsqlerrors.Wrap(err, "create xz writer")
	}
	defer xzWriter.Close()

	tarWriter := tar.NewWriter(xzWriter)
	defer tarWriter.Close()

	if err := writeTarEntry(tarWriter, "root", []byte(root.String())); err != nil {
		return craftsqlerrors.Wrap(err, "write root entry")
	}
	for _, cid := range pages {
		page, err := store.Get(rc.ctx, cid)
		if err != nil {
			return craftsqlerrors.Wrapf(err, "read page %s", cid)
		}
		if err := writeTarEntry(tarWriter, filepath.Join("pages", cid.String()), page); err != nil {
			return craftsqlerrors.Wrapf(err, "write page entry %s", cid)
		}
	}

	fmt.Printf("exported %d pages plus the root to %s\n", len(pages), c.Archive)
	return nil
}

// SnapshotImportCmd imports a tar.xz archive produced by export,
// recording its root under name.
type SnapshotImportCmd struct {
	Dir     string `arg:"" help:"Store directory" type:"path"`
	Archive string `arg:"" help:"Archive path" type:"existingfile"`
	Name    string `arg:"" help:"Name to record the imported root under"`
}

func (c *SnapshotImportCmd) Run(rc runContext) error {
	store, err := localstore.New(c.Dir)
	if err != nil {
		return craftsqlerrors.Wrap(err, "open store")
	}

	file, err := os.Open(c.Archive)
	if err != nil {
		return craftsqlerrors.NewIO("open", c.Archive, err)
	}
	defer file.Close()

	xzReader, err := xz.NewReader(file)
	if err != nil {
		return craftsqlerrors.Wrap(err, "create xz reader")
	}
	tarReader := tar.NewReader(xzReader)

	var root pagestore.CID
	var haveRoot bool
	pageCount := 0

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return craftsqlerrors.Wrap(err, "read tar entry")
		}

		data, err := io.ReadAll(tarReader)
		if err != nil {
			return craftsqlerrors.Wrapf(err, "read tar entry %s", header.Name)
		}

		if header.Name == "root" {
			root, err = pagestore.CIDFromHex(string(data))
			if err != nil {
				return &craftsqlerrors.ParseError{Format: "root CID", Path: c.Archive, Message: err.Error(), Err: err}
			}
			haveRoot = true
			continue
		}

		if _, err := store.Put(rc.ctx, pagestore.Page(data)); err != nil {
			return craftsqlerrors.Wrapf(err, "store archived page %s", header.Name)
		}
		pageCount++
	}

	if !haveRoot {
		return &craftsqlerrors.ParseError{Format: "snapshot archive", Path: c.Archive, Message: "archive does not contain a root entry"}
	}
	if err := store.SetNamedRoot(rc.ctx, c.Name, root); err != nil {
		return craftsqlerrors.Wrap(err, "set named root")
	}

	fmt.Printf("imported %d pages, recorded root %s as %s\n", pageCount, root, c.Name)
	return nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// reachablePages walks the page table at root and returns every CID it
// references. root itself is the page table's own CID and is the first
// entry of the result.
func reachablePages(ctx context.Context, store *localstore.Store, root pagestore.CID) ([]pagestore.CID, error) {
	ptPage, err := store.Get(ctx, root)
	if err != nil {
		return nil, craftsqlerrors.Wrap(err, "read page table at root")
	}
	pt, err := pagestore.PageTableFromBytes(ptPage)
	if err != nil {
		return nil, &craftsqlerrors.ParseError{Format: "page table", Message: err.Error(), Err: err}
	}

	cids := []pagestore.CID{root}
	for i := 0; i < pt.Len(); i++ {
		if cid := pt.Get(i); cid != nil {
			cids = append(cids, *cid)
		}
	}
	return cids, nil
}
