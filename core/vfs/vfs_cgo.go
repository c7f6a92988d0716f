//go:build cgo_sqlite

// Registration of the content-addressed VFS with SQLite via
// psanford/sqlite3vfs, backed by the CGO mattn/go-sqlite3 driver (the
// only driver in contrib/sqlite-external able to register a custom VFS).
package vfs

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psanford/sqlite3vfs"

	"github.com/craft-ec/craftsql/core/pagestore"
)

// Register installs store as a SQLite VFS under name, so
// `sql.Open("sqlite3", "file:db.sqlite?vfs="+name)` routes every page
// read and write through store.
func Register(name string, store pagestore.PageStore) error {
	return sqlite3vfs.RegisterVFS(name, &craftVfs{store: store})
}

// craftVfs implements sqlite3vfs.VFS over a single pagestore.PageStore.
// Every named database opened through it shares the same store.
//
// The host engine runs in rollback-journal mode: alongside the main
// database it opens and deletes a journal file on every commit, and may
// touch WAL/shared-memory names too. None of those carry real content in
// this store; only the main database file is backed by a PageBuffer.
type craftVfs struct {
	store pagestore.PageStore
}

var _ sqlite3vfs.VFS = (*craftVfs)(nil)

// isAuxName reports whether name is a rollback journal, WAL, shared-memory,
// or temp file name rather than a main database file. SQLite derives these
// from the main database's name by a fixed suffix convention; temp files
// come from TemporaryName's own "craftsql-tmp-" prefix.
func isAuxName(name string) bool {
	return strings.HasSuffix(name, "-journal") ||
		strings.HasSuffix(name, "-wal") ||
		strings.HasSuffix(name, "-shm") ||
		strings.HasPrefix(name, "craftsql-tmp-")
}

func (v *craftVfs) Open(name string, flags sqlite3vfs.OpenFlag) (sqlite3vfs.File, sqlite3vfs.OpenFlag, error) {
	isMainDB := flags&sqlite3vfs.OpenMainDB != 0
	if !isMainDB || isAuxName(name) {
		// Journal/WAL/shm/temp handle: accepted but inert.
		return &auxFile{}, flags, nil
	}

	ctx := context.Background()

	if flags&sqlite3vfs.OpenReadOnly != 0 {
		_, ok, err := v.store.CurrentRoot(ctx)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, pagestore.ErrNotFound(pagestore.NilCID)
		}
	}

	pb, err := NewPageBuffer(ctx, v.store)
	if err != nil {
		return nil, 0, err
	}
	return &craftFile{store: v.store, buffer: pb}, flags, nil
}

// Delete is SQLite's xDelete, called with a bare file name and no open
// flags. A rollback-journal commit calls this on the journal's name
// immediately after the main database's page buffer has been synced;
// only a main database name may invalidate the root.
func (v *craftVfs) Delete(name string, dirSync bool) error {
	if isAuxName(name) {
		return nil
	}
	return v.store.UpdateRoot(context.Background(), pagestore.NilCID)
}

func (v *craftVfs) Access(name string, flag sqlite3vfs.AccessFlag) (bool, error) {
	if isAuxName(name) {
		// Auxiliary files are never actually materialized, so they
		// never "exist" from the engine's point of view.
		return false, nil
	}

	_, ok, err := v.store.CurrentRoot(context.Background())
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (v *craftVfs) FullPathname(name string) (string, error) {
	return name, nil
}

// TemporaryName returns a unique name for SQLite's temp files. Temp
// files never reach the page store (SQLite only asks for one when it
// needs scratch space outside the main database), so the name just
// has to be unique.
func (v *craftVfs) TemporaryName() string {
	return fmt.Sprintf("craftsql-tmp-%s", uuid.New().String())
}

// Random fills p with cryptographically secure random bytes. The
// original reference implementation seeded a weak PRNG off the system
// clock's nanosecond component; crypto/rand removes that weakness.
func (v *craftVfs) Random(p []byte) int {
	n, _ := rand.Read(p)
	return n
}

func (v *craftVfs) Sleep(d time.Duration) time.Duration {
	time.Sleep(d)
	return d
}

func (v *craftVfs) CurrentTime() time.Time {
	return time.Now()
}

// craftFile implements sqlite3vfs.File over a PageBuffer.
type craftFile struct {
	store  pagestore.PageStore
	buffer *PageBuffer
	mu     sync.Mutex
	lock   LockKind
}

var _ sqlite3vfs.File = (*craftFile)(nil)

func (f *craftFile) Close() error {
	return f.buffer.Sync(context.Background())
}

func (f *craftFile) ReadAt(p []byte, off int64) (int, error) {
	return f.buffer.ReadExactAt(context.Background(), p, off)
}

func (f *craftFile) WriteAt(p []byte, off int64) (int, error) {
	if err := f.buffer.WriteAllAt(context.Background(), p, off); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *craftFile) Truncate(size int64) error {
	return f.buffer.SetLen(size)
}

func (f *craftFile) Sync(flag sqlite3vfs.SyncType) error {
	return f.buffer.Sync(context.Background())
}

func (f *craftFile) FileSize() (int64, error) {
	return f.buffer.Size(), nil
}

func (f *craftFile) Lock(elock sqlite3vfs.LockType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lock = LockKind(elock)
	return nil
}

func (f *craftFile) Unlock(elock sqlite3vfs.LockType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lock = LockKind(elock)
	return nil
}

func (f *craftFile) CheckReservedLock() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lock >= LockReserved, nil
}

func (f *craftFile) SectorSize() int64 {
	return int64(f.buffer.pageSize)
}

func (f *craftFile) DeviceCharacteristics() sqlite3vfs.DeviceCharacteristic {
	return 0
}

// auxFile is the handle Open returns for a rollback journal, WAL,
// shared-memory, or temp file name: reads see an empty file, writes are
// silently accepted and discarded, and every lifecycle call succeeds.
// Content never needs to reach the page store because PageBuffer.Sync,
// not journal replay, is what makes a commit durable here.
type auxFile struct {
	mu   sync.Mutex
	lock LockKind
}

var _ sqlite3vfs.File = (*auxFile)(nil)

func (f *auxFile) Close() error { return nil }

func (f *auxFile) ReadAt(p []byte, off int64) (int, error) {
	return 0, io.EOF
}

func (f *auxFile) WriteAt(p []byte, off int64) (int, error) {
	return len(p), nil
}

func (f *auxFile) Truncate(size int64) error { return nil }

func (f *auxFile) Sync(flag sqlite3vfs.SyncType) error { return nil }

func (f *auxFile) FileSize() (int64, error) { return 0, nil }

func (f *auxFile) Lock(elock sqlite3vfs.LockType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lock = LockKind(elock)
	return nil
}

func (f *auxFile) Unlock(elock sqlite3vfs.LockType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lock = LockKind(elock)
	return nil
}

func (f *auxFile) CheckReservedLock() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lock >= LockReserved, nil
}

func (f *auxFile) SectorSize() int64 { return 0 }

func (f *auxFile) DeviceCharacteristics() sqlite3vfs.DeviceCharacteristic {
	return 0
}
