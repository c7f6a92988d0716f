package vfs

import (
	"bytes"
	"context"
	"testing"

	"github.com/craft-ec/craftsql/core/localstore"
	"github.com/craft-ec/craftsql/core/pagestore"
)

func newTestBuffer(t *testing.T) (*PageBuffer, *localstore.Store) {
	t.Helper()
	store, err := localstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("localstore.New: %v", err)
	}
	pb, err := NewPageBuffer(context.Background(), store)
	if err != nil {
		t.Fatalf("NewPageBuffer: %v", err)
	}
	return pb, store
}

func TestWriteReadRoundTrip(t *testing.T) {
	pb, _ := newTestBuffer(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte("a"), 4096)
	if err := pb.WriteAllAt(ctx, data, 0); err != nil {
		t.Fatalf("WriteAllAt: %v", err)
	}

	out := make([]byte, 4096)
	if _, err := pb.ReadExactAt(ctx, out, 0); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("read back data does not match what was written")
	}
}

func TestReadPastEndOfFileZeroFills(t *testing.T) {
	pb, _ := newTestBuffer(t)
	ctx := context.Background()

	if err := pb.WriteAllAt(ctx, []byte("short"), 0); err != nil {
		t.Fatalf("WriteAllAt: %v", err)
	}

	out := make([]byte, 20)
	if _, err := pb.ReadExactAt(ctx, out, 0); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	for i := 5; i < len(out); i++ {
		if out[i] != 0 {
			t.Errorf("byte %d past write should be zero, got %d", i, out[i])
		}
	}
}

func TestSyncPersistsEveryBufferedPage(t *testing.T) {
	pb, store := newTestBuffer(t)
	ctx := context.Background()
	pb.pageSize = 16

	if err := pb.WriteAllAt(ctx, []byte("page zero bytes."), 0); err != nil {
		t.Fatalf("WriteAllAt page 0: %v", err)
	}
	if err := pb.WriteAllAt(ctx, []byte("page one byte..."), 16); err != nil {
		t.Fatalf("WriteAllAt page 1: %v", err)
	}

	if err := pb.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	for i := 0; i < pb.pageTable.Len(); i++ {
		cid := pb.pageTable.Get(i)
		if cid == nil {
			t.Fatalf("page %d missing from page table after sync", i)
		}
		if _, err := store.Get(ctx, *cid); err != nil {
			t.Errorf("store.Get(page_table[%d]) failed after sync: %v", i, err)
		}
	}
}

func TestSnapshotAndRestoreViaNamedRoot(t *testing.T) {
	store, err := localstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("localstore.New: %v", err)
	}
	ctx := context.Background()

	pb, err := NewPageBuffer(ctx, store)
	if err != nil {
		t.Fatalf("NewPageBuffer: %v", err)
	}
	pb.pageSize = 16
	if err := pb.WriteAllAt(ctx, []byte("snapshot content"), 0); err != nil {
		t.Fatalf("WriteAllAt: %v", err)
	}
	if err := pb.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	v1, ok, err := store.CurrentRoot(ctx)
	if err != nil || !ok {
		t.Fatalf("CurrentRoot: (%v, %v, %v)", v1, ok, err)
	}
	if err := store.SetNamedRoot(ctx, "v1", v1); err != nil {
		t.Fatalf("SetNamedRoot: %v", err)
	}

	if err := pb.WriteAllAt(ctx, []byte("later content..."), 16); err != nil {
		t.Fatalf("second WriteAllAt: %v", err)
	}
	if err := pb.Sync(ctx); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	restoreTarget, ok, err := store.GetNamedRoot(ctx, "v1")
	if err != nil || !ok {
		t.Fatalf("GetNamedRoot(v1): (%v, %v, %v)", restoreTarget, ok, err)
	}
	if err := store.UpdateRoot(ctx, restoreTarget); err != nil {
		t.Fatalf("UpdateRoot(restoreTarget): %v", err)
	}

	restored, err := NewPageBuffer(ctx, store)
	if err != nil {
		t.Fatalf("reopen NewPageBuffer: %v", err)
	}
	if restored.pageTable.Len() != 1 {
		t.Errorf("restored page table has %d pages, want 1 (only the first snapshot)", restored.pageTable.Len())
	}
}

func TestSetLenTruncatesPagesAndTable(t *testing.T) {
	pb, _ := newTestBuffer(t)
	ctx := context.Background()
	pb.pageSize = 16

	for i := 0; i < 4; i++ {
		if err := pb.WriteAllAt(ctx, []byte("0123456789abcdef"), int64(i*16)); err != nil {
			t.Fatalf("WriteAllAt page %d: %v", i, err)
		}
	}
	if err := pb.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if err := pb.SetLen(32); err != nil {
		t.Fatalf("SetLen: %v", err)
	}
	if pb.pageTable.Len() != 2 {
		t.Errorf("page table length after truncate = %d, want 2", pb.pageTable.Len())
	}
	if pb.Size() != 32 {
		t.Errorf("Size() after SetLen(32) = %d, want 32", pb.Size())
	}
}

func TestPageTableUsedOnReopen(t *testing.T) {
	store, err := localstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("localstore.New: %v", err)
	}
	ctx := context.Background()

	pb, err := NewPageBuffer(ctx, store)
	if err != nil {
		t.Fatalf("NewPageBuffer: %v", err)
	}
	pb.pageSize = 16
	if err := pb.WriteAllAt(ctx, []byte("persisted page.."), 0); err != nil {
		t.Fatalf("WriteAllAt: %v", err)
	}
	if err := pb.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	reopened, err := NewPageBuffer(ctx, store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.pageSize = 16

	out := make([]byte, 16)
	if _, err := reopened.ReadExactAt(ctx, out, 0); err != nil {
		t.Fatalf("ReadExactAt on reopened buffer: %v", err)
	}
	if string(out) != "persisted page.." {
		t.Errorf("reopened buffer read %q, want %q", out, "persisted page..")
	}
}

func TestWriteDetectsPageSizeFromHeader(t *testing.T) {
	pb, _ := newTestBuffer(t)
	ctx := context.Background()

	header := make([]byte, 100)
	copy(header, "SQLite format 3\x00")
	header[16] = 0x08 // page size 2048, big-endian u16
	header[17] = 0x00

	if err := pb.WriteAllAt(ctx, header, 0); err != nil {
		t.Fatalf("WriteAllAt: %v", err)
	}
	if pb.pageSize != 2048 {
		t.Errorf("pageSize after header write = %d, want 2048", pb.pageSize)
	}
}

func TestNilCIDOnEmptyStore(t *testing.T) {
	pb, _ := newTestBuffer(t)
	if pb.pageTable.Len() != 0 {
		t.Error("a fresh buffer over an empty store should start with an empty page table")
	}
	if pb.Size() != 0 {
		t.Error("a fresh buffer over an empty store should start at size 0")
	}
	_ = pagestore.NilCID
}
