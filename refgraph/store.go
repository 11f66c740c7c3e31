// Package refgraph implements the object-reference graph the packer
// builds while scanning a log: for every OID live at the cutoff, the set
// of OIDs its most recent payload references. It's read by the mark-phase
// garbage collector (package gc) and written by the pack driver's index
// and reference-update phases.
//
// Two interchangeable backends are provided: MemoryReferences, entirely
// in-process, and FileReferences, spilled to a scratch directory for
// databases whose working set doesn't comfortably fit in memory.
package refgraph

// Store is the interface both backends satisfy. ioid is the big-endian
// uint64 decoding of an OID (recfmt.OID.IOID()); refgraph never imports
// recfmt because the graph is keyed purely on the integer form.
type Store interface {
	// Get returns the OIDs (as ioids) referenced by ioid, or nil if none
	// are recorded.
	Get(ioid uint64) []uint64

	// Set replaces the reference set for ioid. An empty/nil refs removes
	// the entry entirely.
	Set(ioid uint64, refs []uint64)

	// Remove deletes any recorded references for ioid.
	Remove(ioid uint64)

	// Clear discards all state. For FileReferences this removes the
	// scratch directory and recreates it empty (spec.md §4.2's
	// FileReferences.clear()).
	Clear() error
}

// Merge unions newRefs into the existing reference set for ioid, used by
// the pack driver's post-cutoff scan (spec.md §4.3 item 2) which must
// UNION references made by post-cutoff revisions with whatever the
// pre-cutoff scan already recorded, rather than overwrite them.
func Merge(s Store, ioid uint64, newRefs []uint64) {
	if len(newRefs) == 0 {
		return
	}

	existing := s.Get(ioid)
	if len(existing) == 0 {
		s.Set(ioid, newRefs)
		return
	}

	seen := make(map[uint64]struct{}, len(existing)+len(newRefs))
	merged := make([]uint64, 0, len(existing)+len(newRefs))

	for _, r := range existing {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			merged = append(merged, r)
		}
	}

	for _, r := range newRefs {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			merged = append(merged, r)
		}
	}

	s.Set(ioid, merged)
}
