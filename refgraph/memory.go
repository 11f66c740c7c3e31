package refgraph

// bucketShift splits an ioid into a coarse bucket and a sub-key within it,
// dividing by 2^31 as spec.md §4.2 specifies: "OIDs are split into
// (bucket, sub) by dividing ioid by 2^31". This is purely a memory-layout
// optimization — two smaller maps per bucket instead of one giant map —
// and has no effect on the Store contract.
const bucketShift = 31

func bucketOf(ioid uint64) (bucket uint32, sub uint32) {
	return uint32(ioid >> bucketShift), uint32(ioid & (1<<bucketShift - 1))
}

func ioidOf(bucket, sub uint32) uint64 {
	return uint64(bucket)<<bucketShift | uint64(sub)
}

// memBucket holds the two side-tables for one coarse bucket: a fast
// unboxed slot for ioids with exactly one reference, and a general slot
// for zero-or-many. An ioid appears in at most one of the two tables.
type memBucket struct {
	single map[uint32]uint64
	multi  map[uint32][]uint64
}

// MemoryReferences is an in-process reference graph. It implements Store.
type MemoryReferences struct {
	buckets map[uint32]*memBucket
}

// NewMemoryReferences returns an empty in-process reference graph.
func NewMemoryReferences() *MemoryReferences {
	return &MemoryReferences{buckets: make(map[uint32]*memBucket)}
}

var _ Store = (*MemoryReferences)(nil)

// Get implements Store.
func (m *MemoryReferences) Get(ioid uint64) []uint64 {
	bucket, sub := bucketOf(ioid)

	b, ok := m.buckets[bucket]
	if !ok {
		return nil
	}

	if ref, ok := b.single[sub]; ok {
		return []uint64{ref}
	}

	if refs, ok := b.multi[sub]; ok {
		return refs
	}

	return nil
}

// Set implements Store.
func (m *MemoryReferences) Set(ioid uint64, refs []uint64) {
	if len(refs) == 0 {
		m.Remove(ioid)
		return
	}

	bucket, sub := bucketOf(ioid)

	b, ok := m.buckets[bucket]
	if !ok {
		b = &memBucket{single: make(map[uint32]uint64), multi: make(map[uint32][]uint64)}
		m.buckets[bucket] = b
	}

	if len(refs) == 1 {
		delete(b.multi, sub)
		b.single[sub] = refs[0]

		return
	}

	delete(b.single, sub)
	b.multi[sub] = append([]uint64(nil), refs...)
}

// Remove implements Store.
func (m *MemoryReferences) Remove(ioid uint64) {
	bucket, sub := bucketOf(ioid)

	b, ok := m.buckets[bucket]
	if !ok {
		return
	}

	delete(b.single, sub)
	delete(b.multi, sub)
}

// Clear implements Store.
func (m *MemoryReferences) Clear() error {
	m.buckets = make(map[uint32]*memBucket)
	return nil
}

// Len returns the total number of entries across all buckets. Test/
// diagnostic helper, not part of the Store interface.
func (m *MemoryReferences) Len() int {
	n := 0
	for _, b := range m.buckets {
		n += len(b.single) + len(b.multi)
	}

	return n
}
