package pack

import (
	"sort"

	"github.com/calvinalkan/objpack/gc"
	"github.com/calvinalkan/objpack/recfmt"
)

// Index is the current-at-cutoff OID -> Position map built by
// buildPackIndex (spec.md §4.1). The worker goroutine hands it back to its
// caller in memory; it is also gob-serialized to the .packindex sidecar as
// an on-disk record of the run, which the driver does not read back.
//
// Entries is exported so encoding/gob can see it; callers should use the
// accessor methods rather than touching the map directly so Index keeps
// satisfying gc.IndexGetter as its representation evolves.
type Index struct {
	Entries map[recfmt.OID]recfmt.Position
}

var _ gc.IndexGetter = (*Index)(nil)

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{Entries: make(map[recfmt.OID]recfmt.Position)}
}

// Get reports the position of oid's current revision, and whether oid is
// present at all.
func (idx *Index) Get(oid recfmt.OID) (recfmt.Position, bool) {
	pos, ok := idx.Entries[oid]
	return pos, ok
}

// Set records oid's current revision at pos, overwriting any prior entry —
// used by buildPackIndex when a later transaction revises an object
// already seen earlier in the scan.
func (idx *Index) Set(oid recfmt.OID, pos recfmt.Position) {
	idx.Entries[oid] = pos
}

// Delete removes oid from the index, used when buildPackIndex encounters
// a deletion marker (zero payload, zero backpointer).
func (idx *Index) Delete(oid recfmt.OID) {
	delete(idx.Entries, oid)
}

// Len returns the number of live entries.
func (idx *Index) Len() int {
	return len(idx.Entries)
}

// OIDs returns every indexed OID in ascending order. The copy phases do
// not use it; they scan the log.
func (idx *Index) OIDs() []recfmt.OID {
	out := make([]recfmt.OID, 0, len(idx.Entries))
	for oid := range idx.Entries {
		out = append(out, oid)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })

	return out
}
