package refgraph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// On-disk bucket format for FileReferences, replacing the original's
// marshal'd Python dict with a fixed binary layout per SPEC_FULL.md §9 /
// DESIGN.md: there is no cross-process or cross-version compatibility
// requirement for these scratch files, so the layout can change freely
// between objpack releases.
//
//	magic(4) | version(4) | count(4) | crc32c(4) | count * entry
//	entry := ioid(8) | n_refs(4) | n_refs * ref_ioid(8)
//
// Grounded on pkg/slotcache/format.go's fixed-header-plus-CRC idiom.
const (
	bucketMagic      = "PREF"
	bucketVersion    = 1
	bucketHeaderSize = 4 + 4 + 4 + 4
)

var bucketCRCTable = crc32.MakeTable(crc32.Castagnoli)

// ErrBucketCorrupt indicates a spilled reference bucket failed its CRC or
// structural checks. Rebuild-class: the caller should treat the bucket as
// empty and let the pack rebuild it (the reference graph is a transient
// scratch structure entirely derived from the log, never the source of
// truth — spec.md §3's ReferenceGraph lifetime is "built during phase 1,
// refined during phases 2–3", never persisted long-term).
var ErrBucketCorrupt = errors.New("refgraph: corrupt bucket")

// encodeBucket serializes a bucket's live entries to the fixed binary
// layout described above.
func encodeBucket(entries map[uint64][]uint64) []byte {
	size := bucketHeaderSize
	for _, refs := range entries {
		size += 8 + 4 + 8*len(refs)
	}

	buf := make([]byte, size)
	copy(buf[0:4], bucketMagic)
	binary.LittleEndian.PutUint32(buf[4:8], bucketVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(entries)))
	// buf[12:16] (crc) filled in after the payload is written.

	off := bucketHeaderSize
	for ioid, refs := range entries {
		binary.LittleEndian.PutUint64(buf[off:off+8], ioid)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(refs)))
		off += 4

		for _, r := range refs {
			binary.LittleEndian.PutUint64(buf[off:off+8], r)
			off += 8
		}
	}

	crc := crc32.Checksum(buf[bucketHeaderSize:], bucketCRCTable)
	binary.LittleEndian.PutUint32(buf[12:16], crc)

	return buf
}

// decodeBucket parses a bucket written by encodeBucket, validating magic,
// version, and CRC. Returns ErrBucketCorrupt (wrapped) on any mismatch.
func decodeBucket(buf []byte) (map[uint64][]uint64, error) {
	if len(buf) < bucketHeaderSize {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", ErrBucketCorrupt, len(buf))
	}

	if string(buf[0:4]) != bucketMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBucketCorrupt)
	}

	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != bucketVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBucketCorrupt, version)
	}

	count := binary.LittleEndian.Uint32(buf[8:12])
	storedCRC := binary.LittleEndian.Uint32(buf[12:16])

	payload := buf[bucketHeaderSize:]
	if crc32.Checksum(payload, bucketCRCTable) != storedCRC {
		return nil, fmt.Errorf("%w: crc mismatch", ErrBucketCorrupt)
	}

	entries := make(map[uint64][]uint64, count)

	off := 0
	for range count {
		if off+12 > len(payload) {
			return nil, fmt.Errorf("%w: truncated entry header", ErrBucketCorrupt)
		}

		ioid := binary.LittleEndian.Uint64(payload[off : off+8])
		off += 8
		n := binary.LittleEndian.Uint32(payload[off : off+4])
		off += 4

		need := int(n) * 8
		if off+need > len(payload) {
			return nil, fmt.Errorf("%w: truncated entry refs", ErrBucketCorrupt)
		}

		refs := make([]uint64, n)
		for i := range refs {
			refs[i] = binary.LittleEndian.Uint64(payload[off : off+8])
			off += 8
		}

		entries[ioid] = refs
	}

	return entries, nil
}
