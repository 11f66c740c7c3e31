// Package gc implements the mark-phase reachability collector that turns
// the index built by the first scan pass into the final, GC-reduced index
// a pack actually writes out.
//
// The algorithm is a plain breadth/depth-agnostic worklist walk over the
// reference graph built by package refgraph, starting from OID zero (the
// database root). It deliberately has no notion of a log file, a cutoff,
// or a pack driver — it only needs an index lookup and a reference store,
// so it stays acyclic with respect to package pack, which depends on it.
package gc

import (
	"github.com/calvinalkan/objpack/recfmt"
	"github.com/calvinalkan/objpack/refgraph"
)

// IndexGetter is the read side of the pre-cutoff index the mark phase
// walks. Get must behave like a map lookup with a missing-key signal: the
// mark phase needs to distinguish "this OID was never indexed before the
// cutoff" (ok == false, in which case the reachable position defaults to
// zero — a forward reference to an object created only after the cutoff)
// from "this OID's most recent pre-cutoff position is zero" (which cannot
// actually happen since position zero is the file header, but the
// distinction is kept explicit rather than relying on a sentinel value).
type IndexGetter interface {
	Get(oid recfmt.OID) (recfmt.Position, bool)
}

// Mark walks the reference graph reachable from OID zero and returns the
// reduced index: for every reachable OID, its most recent pre-cutoff
// position (or zero if the OID was only ever referenced post-cutoff).
//
// Root OID zero is always present in the result, even if it has no
// pre-cutoff position and no payload — exactly one deletion marker for it
// existing with a zero position is the documented degenerate case.
//
// Mark clears graph as its last step: the reference graph has no use
// once the reachable set is computed, and an empty graph is cheaper to
// carry across the remaining pack phases than a full one.
func Mark(index IndexGetter, graph refgraph.Store) (map[recfmt.OID]recfmt.Position, error) {
	reachable := make(map[recfmt.OID]recfmt.Position)
	reached := make(map[uint64]struct{})
	workList := []uint64{0}

	for len(workList) > 0 {
		n := len(workList) - 1
		ioid := workList[n]
		workList = workList[:n]

		if _, ok := reached[ioid]; ok {
			continue
		}

		reached[ioid] = struct{}{}

		oid := recfmt.OIDFromIOID(ioid)

		pos, _ := index.Get(oid) // missing -> zero value, per index.get(oid, 0)
		reachable[oid] = pos

		for _, ref := range graph.Get(ioid) {
			if _, ok := reached[ref]; !ok {
				workList = append(workList, ref)
			}
		}
	}

	if err := graph.Clear(); err != nil {
		return nil, err
	}

	return reachable, nil
}
