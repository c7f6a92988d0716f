package netstore

import (
	"encoding/binary"
	"fmt"

	"github.com/craft-ec/craftsql/core/pagestore"
)

const (
	bundleMagic   = "CSQL"
	bundleVersion = uint16(1)
	bundleHeaderLen = 4 + 2 + 4 + 4 // magic + version + page_size + page_count
)

// packBundle packs a page table and every one of its live pages into a
// single blob, little-endian, bit-exact with:
//
//	offset 0  : 4 bytes   magic  = "CSQL"
//	offset 4  : u16       version = 1
//	offset 6  : u32       page_size
//	offset 10 : u32       page_count
//	offset 14 : pt_bytes (pt_len bytes)
//	offset 14+pt_len : u32  pt_len (trailer, repeated for locate-back)
//	offset 14+pt_len+4 : page_count * page_size bytes, index order,
//	                     absent slots zero-filled, short pages zero-padded
func packBundle(pt *pagestore.PageTable, pageSize int, pages [][]byte) ([]byte, error) {
	ptBytes, err := pt.MarshalBinary()
	if err != nil {
		return nil, err
	}
	pageCount := pt.Len()
	if len(pages) != pageCount {
		return nil, fmt.Errorf("netstore: packBundle got %d pages, page table has %d", len(pages), pageCount)
	}

	total := bundleHeaderLen + len(ptBytes) + 4 + pageCount*pageSize
	buf := make([]byte, total)

	copy(buf[0:4], bundleMagic)
	binary.LittleEndian.PutUint16(buf[4:6], bundleVersion)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(pageSize))
	binary.LittleEndian.PutUint32(buf[10:14], uint32(pageCount))
	copy(buf[14:14+len(ptBytes)], ptBytes)

	trailerOffset := 14 + len(ptBytes)
	binary.LittleEndian.PutUint32(buf[trailerOffset:trailerOffset+4], uint32(len(ptBytes)))

	pagesOffset := trailerOffset + 4
	for i, p := range pages {
		dst := buf[pagesOffset+i*pageSize : pagesOffset+(i+1)*pageSize]
		// zero-filled by make(); short pages are zero-padded, absent
		// slots pass a nil page and leave the block entirely zero.
		copy(dst, p)
	}

	return buf, nil
}

// unpackBundle reverses packBundle, validating the header, the magic,
// and every length before slicing.
func unpackBundle(data []byte) (pt *pagestore.PageTable, pageSize int, pages [][]byte, err error) {
	if len(data) < bundleHeaderLen {
		return nil, 0, nil, fmt.Errorf("netstore: bundle too short: %d bytes", len(data))
	}
	if string(data[0:4]) != bundleMagic {
		return nil, 0, nil, fmt.Errorf("netstore: bad bundle magic %q", data[0:4])
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != bundleVersion {
		return nil, 0, nil, fmt.Errorf("netstore: unsupported bundle version %d", version)
	}
	ps := int(binary.LittleEndian.Uint32(data[6:10]))
	pageCount := int(binary.LittleEndian.Uint32(data[10:14]))

	totalLen := len(data)
	tail := totalLen - pageCount*ps - 4
	if tail < 14 || tail > totalLen-4 {
		return nil, 0, nil, fmt.Errorf("netstore: bundle length inconsistent with page_size/page_count")
	}

	ptLen := int(binary.LittleEndian.Uint32(data[tail : tail+4]))
	if 14+ptLen != tail {
		return nil, 0, nil, fmt.Errorf("netstore: bundle trailer pt_len %d does not match header", ptLen)
	}

	ptBytes := data[14:tail]
	parsed, err := pagestore.PageTableFromBytes(ptBytes)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("netstore: parse bundled page table: %w", err)
	}
	if parsed.Len() != pageCount {
		return nil, 0, nil, fmt.Errorf("netstore: bundle page_count %d does not match page table length %d", pageCount, parsed.Len())
	}

	pagesOffset := tail + 4
	if pagesOffset+pageCount*ps != totalLen {
		return nil, 0, nil, fmt.Errorf("netstore: bundle page section length mismatch")
	}

	pageBlocks := make([][]byte, pageCount)
	for i := 0; i < pageCount; i++ {
		start := pagesOffset + i*ps
		block := make([]byte, ps)
		copy(block, data[start:start+ps])
		pageBlocks[i] = block
	}

	return parsed, ps, pageBlocks, nil
}
