// Package vfs adapts a core/pagestore.PageStore into a SQLite virtual
// file system, so SQLite reads and writes pages through content-addressed
// storage instead of a plain file. Registration with the SQLite driver
// requires CGO (see vfs_cgo.go); the buffering and sync logic here has
// no such requirement and is exercised directly by tests.
package vfs

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/craft-ec/craftsql/core/pagestore"
	"github.com/craft-ec/craftsql/internal/dbheader"
	"github.com/craft-ec/craftsql/internal/logging"
)

// PageBuffer is the in-memory working set for one open database handle:
// a sparse array of pages, materialized from the backing store on first
// touch and flushed back on Sync.
type PageBuffer struct {
	mu        sync.Mutex
	store     pagestore.PageStore
	pages     [][]byte
	pageSize  int
	fileSize  int64
	pageTable *pagestore.PageTable
	dirty     map[int]bool
}

// NewPageBuffer creates a PageBuffer backed by store, loading the
// current root's page table if one exists.
func NewPageBuffer(ctx context.Context, store pagestore.PageStore) (*PageBuffer, error) {
	pb := &PageBuffer{
		store:     store,
		pageTable: pagestore.NewPageTable(),
		dirty:     make(map[int]bool),
		pageSize:  dbheader.DefaultPageSize,
	}

	root, ok, err := store.CurrentRoot(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return pb, nil
	}

	ptPage, err := store.Get(ctx, root)
	if err != nil {
		return nil, err
	}
	pt, err := pagestore.PageTableFromBytes(ptPage)
	if err != nil {
		return nil, pagestore.ErrStorageWrap("parse page table on open", err)
	}
	pb.pageTable = pt
	pb.pages = make([][]byte, pt.Len())
	pb.fileSize = int64(pt.Len()) * int64(pb.pageSize)
	return pb, nil
}

func pageCountFor(size int64, pageSize int) int {
	if size <= 0 {
		return 0
	}
	count := size / int64(pageSize)
	if size%int64(pageSize) != 0 {
		count++
	}
	return int(count)
}

// ensurePage returns page pageNum, materializing it from the in-memory
// buffer, then the backing store, then a zero-filled block, in that
// order.
func (pb *PageBuffer) ensurePage(ctx context.Context, pageNum int) ([]byte, error) {
	if pageNum < len(pb.pages) && pb.pages[pageNum] != nil {
		return pb.pages[pageNum], nil
	}

	if pageNum >= len(pb.pages) {
		grown := make([][]byte, pageNum+1)
		copy(grown, pb.pages)
		pb.pages = grown
	}

	if cid := pb.pageTable.Get(pageNum); cid != nil {
		data, err := pb.store.Get(ctx, *cid)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, pb.pageSize)
		copy(buf, data)
		pb.pages[pageNum] = buf
		return buf, nil
	}

	buf := make([]byte, pb.pageSize)
	pb.pages[pageNum] = buf
	return buf, nil
}

// Size returns the handle's current logical size in bytes.
func (pb *PageBuffer) Size() int64 {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.fileSize
}

// ReadExactAt reads len(p) bytes starting at off, zero-filling any
// portion past the current file size, spanning as many pages as
// necessary.
func (pb *PageBuffer) ReadExactAt(ctx context.Context, p []byte, off int64) (int, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	for i := range p {
		p[i] = 0
	}

	if off >= pb.fileSize {
		return 0, nil
	}

	remaining := p
	cursor := off
	total := 0
	for len(remaining) > 0 && cursor < pb.fileSize {
		pageNum := int(cursor / int64(pb.pageSize))
		pageOff := int(cursor % int64(pb.pageSize))

		page, err := pb.ensurePage(ctx, pageNum)
		if err != nil {
			return total, err
		}

		n := copy(remaining, page[pageOff:])
		remaining = remaining[n:]
		cursor += int64(n)
		total += n
	}
	return total, nil
}

// WriteAllAt writes data at off, growing the file and allocating pages
// as needed. The page size is detected from the SQLite header when byte
// offset 0 is written while the page table is still empty (nothing has
// been committed yet).
func (pb *PageBuffer) WriteAllAt(ctx context.Context, data []byte, off int64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if off == 0 && pb.pageTable.Len() == 0 && len(data) >= dbheader.OffsetPageSize+2 {
		raw := binary.BigEndian.Uint16(data[dbheader.OffsetPageSize : dbheader.OffsetPageSize+2])
		detected := int(raw)
		if raw == 1 {
			detected = dbheader.MaxPageSize
		}
		if dbheader.IsValidPageSize(detected) && detected != pb.pageSize {
			pb.resizePages(detected)
		}
	}

	remaining := data
	cursor := off
	for len(remaining) > 0 {
		pageNum := int(cursor / int64(pb.pageSize))
		pageOff := int(cursor % int64(pb.pageSize))

		page, err := pb.ensurePage(ctx, pageNum)
		if err != nil {
			return err
		}

		n := copy(page[pageOff:], remaining)
		pb.pages[pageNum] = page
		pb.dirty[pageNum] = true
		remaining = remaining[n:]
		cursor += int64(n)
	}

	if cursor > pb.fileSize {
		pb.fileSize = cursor
	}
	return nil
}

// resizePages records a newly detected page size. It runs only before the
// first commit; pages already buffered are not re-split to the new size.
func (pb *PageBuffer) resizePages(pageSize int) {
	pb.pageSize = pageSize
}

// Sync hashes every dirty page into the backing store, rebuilds the
// page table, stores it, and updates the store's root, then clears
// dirty state (the page table itself stays resident).
func (pb *PageBuffer) Sync(ctx context.Context) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if len(pb.dirty) == 0 {
		return nil
	}

	for pageNum := range pb.dirty {
		if pageNum >= len(pb.pages) || pb.pages[pageNum] == nil {
			continue
		}
		cid, err := pb.store.Put(ctx, pagestore.Page(pb.pages[pageNum]))
		if err != nil {
			return err
		}
		pb.pageTable.Set(pageNum, cid)
	}

	ptBytes, err := pb.pageTable.MarshalBinary()
	if err != nil {
		return pagestore.ErrStorageWrap("marshal page table on sync", err)
	}
	ptCID, err := pb.store.Put(ctx, pagestore.Page(ptBytes))
	if err != nil {
		return err
	}
	if err := pb.store.UpdateRoot(ctx, ptCID); err != nil {
		return err
	}

	pb.dirty = make(map[int]bool)
	logging.SyncCommitted(pb.pageTable.Len(), pb.pageSize, ptCID.String())
	return nil
}

// SetLen truncates or extends the handle to size bytes.
func (pb *PageBuffer) SetLen(size int64) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.fileSize = size
	pageCount := pageCountFor(size, pb.pageSize)

	pb.pageTable.Truncate(pageCount)
	if pageCount < len(pb.pages) {
		pb.pages = pb.pages[:pageCount]
	}
	for pageNum := range pb.dirty {
		if pageNum >= pageCount {
			delete(pb.dirty, pageNum)
		}
	}
	return nil
}
