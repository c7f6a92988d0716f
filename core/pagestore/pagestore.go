// Package pagestore defines the content-addressed page store contract:
// CIDs, pages, page tables, and the PageStore interface every backend
// implements.
package pagestore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// CID is the content identifier of a page: the SHA-256 digest of its bytes.
type CID [32]byte

// NilCID is the distinguished all-zero CID representing "no root".
var NilCID CID

// String returns the lower-case hexadecimal encoding of the CID.
func (c CID) String() string {
	return hex.EncodeToString(c[:])
}

// IsNil reports whether c is the all-zero CID.
func (c CID) IsNil() bool {
	return c == NilCID
}

// CIDFromHex parses a lower- or upper-case hex string into a CID.
func CIDFromHex(s string) (CID, error) {
	var c CID
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("pagestore: invalid CID hex: %w", err)
	}
	if len(b) != len(c) {
		return c, fmt.Errorf("pagestore: invalid CID length %d, want %d", len(b), len(c))
	}
	copy(c[:], b)
	return c, nil
}

// CIDOf computes the CID of a byte slice.
func CIDOf(data []byte) CID {
	return CID(sha256.Sum256(data))
}

// Page is an immutable byte string; the CID of a page is the SHA-256 of
// its bytes. A page carries no schema beyond its content.
type Page []byte

// CID returns the content identifier of the page.
func (p Page) CID() CID {
	return CIDOf(p)
}

// PageTable is an ordered sequence of optional CIDs indexed by logical
// page number. A nil entry denotes a page the engine has not yet written.
type PageTable struct {
	entries []*CID
}

// NewPageTable returns an empty page table.
func NewPageTable() *PageTable {
	return &PageTable{}
}

// Len returns the number of entries (including trailing None slots).
func (pt *PageTable) Len() int {
	if pt == nil {
		return 0
	}
	return len(pt.entries)
}

// Get returns the CID at pageNum, or nil if absent or out of range.
func (pt *PageTable) Get(pageNum int) *CID {
	if pt == nil || pageNum < 0 || pageNum >= len(pt.entries) {
		return nil
	}
	return pt.entries[pageNum]
}

// Set assigns cid to pageNum, growing the table if necessary.
func (pt *PageTable) Set(pageNum int, cid CID) {
	pt.ensure(pageNum + 1)
	c := cid
	pt.entries[pageNum] = &c
}

// Truncate shrinks the table to at most n entries.
func (pt *PageTable) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(pt.entries) {
		pt.entries = pt.entries[:n]
	}
}

func (pt *PageTable) ensure(n int) {
	for len(pt.entries) < n {
		pt.entries = append(pt.entries, nil)
	}
}

// DiffEntry is one triple of a PageTableDiff: the page number and the
// old/new CID at that index (either may be nil).
type DiffEntry struct {
	PageNum int
	Old     *CID
	New     *CID
}

// Diff returns every index where pt and other differ, scanning both to
// the longer length.
func (pt *PageTable) Diff(other *PageTable) []DiffEntry {
	n := pt.Len()
	if other.Len() > n {
		n = other.Len()
	}
	var diffs []DiffEntry
	for i := 0; i < n; i++ {
		a := pt.Get(i)
		b := other.Get(i)
		if !cidPtrEqual(a, b) {
			diffs = append(diffs, DiffEntry{PageNum: i, Old: a, New: b})
		}
	}
	return diffs
}

func cidPtrEqual(a, b *CID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MarshalBinary encodes the page table as: u64 LE entry count, then per
// entry a 1-byte tag (0=None, 1=Some) followed by the 32-byte CID when
// the tag is 1.
func (pt *PageTable) MarshalBinary() ([]byte, error) {
	n := pt.Len()
	buf := make([]byte, 8, 8+n*(1+32))
	binary.LittleEndian.PutUint64(buf, uint64(n))
	for _, e := range pt.entries {
		if e == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = append(buf, e[:]...)
	}
	return buf, nil
}

// UnmarshalBinary decodes a page table previously produced by
// MarshalBinary.
func (pt *PageTable) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("pagestore: page table too short: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint64(data[:8])
	rest := data[8:]
	entries := make([]*CID, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(rest) < 1 {
			return fmt.Errorf("pagestore: page table truncated at entry %d", i)
		}
		tag := rest[0]
		rest = rest[1:]
		switch tag {
		case 0:
			entries = append(entries, nil)
		case 1:
			if len(rest) < 32 {
				return fmt.Errorf("pagestore: page table truncated CID at entry %d", i)
			}
			var c CID
			copy(c[:], rest[:32])
			rest = rest[32:]
			entries = append(entries, &c)
		default:
			return fmt.Errorf("pagestore: invalid page table tag %d at entry %d", tag, i)
		}
	}
	pt.entries = entries
	return nil
}

// PageTableFromBytes decodes a page table from its binary wire format.
func PageTableFromBytes(data []byte) (*PageTable, error) {
	pt := NewPageTable()
	if err := pt.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return pt, nil
}

// NamedRoot pairs a snapshot/branch name with the CID it points to.
type NamedRoot struct {
	Name string
	CID  CID
}

// PageStore is the contract every backend implements: immutable
// content-addressed pages, a default root pointer, and named roots for
// snapshots and branches. All methods MUST be safe for concurrent use.
type PageStore interface {
	// Get returns the page whose SHA-256 equals cid, or an error
	// wrapping ErrNotFound if it does not exist.
	Get(ctx context.Context, cid CID) (Page, error)

	// Put stores page idempotently and returns its CID.
	Put(ctx context.Context, page Page) (CID, error)

	// UpdateRoot sets the default root pointer. NilCID means "delete".
	UpdateRoot(ctx context.Context, cid CID) error

	// CurrentRoot returns the default root, or ok=false if never set.
	CurrentRoot(ctx context.Context) (cid CID, ok bool, err error)

	// SetNamedRoot creates or overwrites a named root.
	SetNamedRoot(ctx context.Context, name string, cid CID) error

	// GetNamedRoot looks up a named root; ok=false if absent.
	GetNamedRoot(ctx context.Context, name string) (cid CID, ok bool, err error)

	// RemoveNamedRoot deletes a named root, reporting whether it existed.
	RemoveNamedRoot(ctx context.Context, name string) (bool, error)

	// ListNamedRoots returns every named root, sorted by name.
	ListNamedRoots(ctx context.Context) ([]NamedRoot, error)
}
