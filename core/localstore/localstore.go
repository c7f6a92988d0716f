// Package localstore implements core/pagestore.PageStore over a local
// directory: pages as immutable files, a single root file, and one file
// per named root.
package localstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/craft-ec/craftsql/core/pagestore"
)

// Store is a PageStore backed by a local directory laid out as:
//
//	<dir>/pages/<hex-cid>       one file per page, raw bytes
//	<dir>/root                  ASCII hex of the 32-byte default root CID
//	<dir>/refs/<sanitized-name> ASCII hex of a named root CID
type Store struct {
	dir string
}

var _ pagestore.PageStore = (*Store)(nil)

// New creates (if necessary) the directory layout rooted at dir and
// returns a Store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(pagesDir(dir), 0o755); err != nil {
		return nil, pagestore.ErrStorageWrap("create pages directory", err)
	}
	return &Store{dir: dir}, nil
}

func pagesDir(dir string) string {
	return filepath.Join(dir, "pages")
}

func (s *Store) pagePath(cid pagestore.CID) string {
	return filepath.Join(pagesDir(s.dir), cid.String())
}

func (s *Store) rootPath() string {
	return filepath.Join(s.dir, "root")
}

func (s *Store) refsDir() string {
	return filepath.Join(s.dir, "refs")
}

// refPath returns the sanitized on-disk path for a named root. Name
// sanitization keeps [A-Za-z0-9._-] and substitutes "_" for anything
// else; this is part of the on-disk contract and must be stable.
func (s *Store) refPath(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return filepath.Join(s.refsDir(), b.String())
}

// Get implements pagestore.PageStore.
func (s *Store) Get(_ context.Context, cid pagestore.CID) (pagestore.Page, error) {
	data, err := os.ReadFile(s.pagePath(cid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pagestore.ErrNotFound(cid)
		}
		return nil, pagestore.ErrStorageWrap("read page", err)
	}
	return pagestore.Page(data), nil
}

// Put implements pagestore.PageStore. Writes happen via a temp file and
// an atomic rename, and are skipped entirely if the page already exists
// (dedup is free).
func (s *Store) Put(_ context.Context, page pagestore.Page) (pagestore.CID, error) {
	cid := page.CID()
	path := s.pagePath(cid)
	if _, err := os.Stat(path); err == nil {
		return cid, nil
	}
	if err := writeFileAtomic(path, page); err != nil {
		return pagestore.CID{}, pagestore.ErrStorageWrap("write page", err)
	}
	return cid, nil
}

// UpdateRoot implements pagestore.PageStore.
func (s *Store) UpdateRoot(_ context.Context, cid pagestore.CID) error {
	if err := writeFileAtomic(s.rootPath(), []byte(cid.String())); err != nil {
		return pagestore.ErrStorageWrap("write root", err)
	}
	return nil
}

// CurrentRoot implements pagestore.PageStore.
func (s *Store) CurrentRoot(_ context.Context) (pagestore.CID, bool, error) {
	return readCIDFile(s.rootPath())
}

// SetNamedRoot implements pagestore.PageStore.
func (s *Store) SetNamedRoot(_ context.Context, name string, cid pagestore.CID) error {
	if err := os.MkdirAll(s.refsDir(), 0o755); err != nil {
		return pagestore.ErrStorageWrap("create refs directory", err)
	}
	if err := writeFileAtomic(s.refPath(name), []byte(cid.String())); err != nil {
		return pagestore.ErrStorageWrap("write named root", err)
	}
	return nil
}

// GetNamedRoot implements pagestore.PageStore.
func (s *Store) GetNamedRoot(_ context.Context, name string) (pagestore.CID, bool, error) {
	return readCIDFile(s.refPath(name))
}

// RemoveNamedRoot implements pagestore.PageStore.
func (s *Store) RemoveNamedRoot(_ context.Context, name string) (bool, error) {
	err := os.Remove(s.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, pagestore.ErrStorageWrap("remove named root", err)
	}
	return true, nil
}

// ListNamedRoots implements pagestore.PageStore, sorted lexicographically
// by name.
func (s *Store) ListNamedRoots(_ context.Context) ([]pagestore.NamedRoot, error) {
	entries, err := os.ReadDir(s.refsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, pagestore.ErrStorageWrap("list refs directory", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	roots := make([]pagestore.NamedRoot, 0, len(names))
	for _, name := range names {
		cid, ok, err := readCIDFile(filepath.Join(s.refsDir(), name))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		roots = append(roots, pagestore.NamedRoot{Name: name, CID: cid})
	}
	return roots, nil
}

func readCIDFile(path string) (pagestore.CID, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pagestore.CID{}, false, nil
		}
		return pagestore.CID{}, false, pagestore.ErrStorageWrap("read pointer file", err)
	}
	cid, err := pagestore.CIDFromHex(strings.TrimSpace(string(data)))
	if err != nil {
		return pagestore.CID{}, false, pagestore.ErrStorageWrap(fmt.Sprintf("parse pointer file %s", path), err)
	}
	return cid, true, nil
}

// writeFileAtomic writes data to a temp file in the same directory as
// path and renames it into place, so concurrent readers never observe a
// partially written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
