package pack

import (
	"github.com/calvinalkan/objpack/recfmt"
	"github.com/calvinalkan/objpack/refgraph"
)

// indexResult is buildPackIndex's output: the current-at-cutoff index, the
// position the pre-cutoff scan stopped at (the boundary phase 2 resumes
// from), and whether every in-range transaction was already packed.
type indexResult struct {
	Index     *Index
	CutoffPos recfmt.Position
	Redundant bool
}

// buildPackIndex is phase 1 (spec.md §4.3 item 1): a sequential scan of
// [recfmt.MetadataSize, fileEnd), stopping at the first transaction whose
// TID exceeds cutoff. For each transaction in range it folds data records
// into idx (overwrite on revision, delete on a George Bailey marker) and,
// if hooks.GCEnabled(), resolves each record's payload and records its
// outbound references in graph.
func buildPackIndex(rd *recfmt.Reader, cutoff recfmt.TID, fileEnd recfmt.Position, graph refgraph.Store, hooks Hooks) (indexResult, error) {
	idx := NewIndex()
	pos := recfmt.MetadataSize
	anyNotPacked := false

	for pos < fileEnd {
		h, err := rd.ReadTxnHeader(pos, fileEnd)
		if err != nil {
			return indexResult{}, wrap("buildPackIndex", err, withPos(pos))
		}

		if h.TID.After(cutoff) {
			break
		}

		if err := verifyTrailer(rd, h); err != nil {
			return indexResult{}, wrap("buildPackIndex", err, withPos(pos))
		}

		if h.Status != recfmt.StatusPacked {
			anyNotPacked = true
		}

		if err := foldTxnIntoIndex(rd, h, idx, graph, hooks, fileEnd); err != nil {
			return indexResult{}, err
		}

		pos = h.End()
	}

	// Every in-range transaction was already status 'p': redundant pack
	// (spec.md §4.3 item 1, §7 RedundantPackWarning). A file with no
	// in-range transactions at all (pos never advanced) is not "redundant"
	// in this sense — it's simply empty.
	redundant := !anyNotPacked && pos > recfmt.MetadataSize

	return indexResult{Index: idx, CutoffPos: pos, Redundant: redundant}, nil
}

// verifyTrailer re-reads the trailing duplicate length field and confirms
// it agrees with the header's declared length (spec.md §3: "Header
// total-length equals trailer total-length; mismatch is fatal corruption").
func verifyTrailer(rd *recfmt.Reader, h recfmt.TxnHeader) error {
	trailer, err := rd.ReadNum(h.DataEnd())
	if err != nil {
		return err
	}

	if trailer != h.Len {
		return recfmt.NewCorrupted(h.DataEnd(), "trailer length %d disagrees with header length %d", trailer, h.Len)
	}

	return nil
}

// foldTxnIntoIndex walks every data record of one transaction, updating
// idx and (if GC is enabled) graph.
func foldTxnIntoIndex(rd *recfmt.Reader, h recfmt.TxnHeader, idx *Index, graph refgraph.Store, hooks Hooks, fileEnd recfmt.Position) error {
	pos := h.DataStart()

	for pos < h.DataEnd() {
		dh, err := rd.ReadDataHeader(pos, h.DataEnd())
		if err != nil {
			return wrap("buildPackIndex", err, withPos(pos))
		}

		if dh.IsBackpointer() {
			back, err := rd.ReadBackpointer(dh)
			if err != nil {
				return wrap("buildPackIndex", err, withPos(pos), withOID(dh.OID))
			}

			if recfmt.IsGeorgeBailey(back) {
				idx.Delete(dh.OID)

				if hooks.GCEnabled() {
					graph.Remove(dh.OID.IOID())
				}

				pos = dh.End()
				continue
			}
		}

		idx.Set(dh.OID, dh.Pos)

		if hooks.GCEnabled() {
			if err := updateRefsForRecord(rd, dh, graph, hooks, fileEnd); err != nil {
				return err
			}
		}

		pos = dh.End()
	}

	return nil
}

// updateRefsForRecord resolves dh's payload (chasing backpointers if
// necessary) and stores its outbound references in graph, or removes the
// entry entirely if the record resolves to no payload (spec.md §4.3 item
// 1: "call update_refs(dh, refs) ... or calls remove(ioid) if the record
// resolves to no payload").
func updateRefsForRecord(rd *recfmt.Reader, dh recfmt.DataHeader, graph refgraph.Store, hooks Hooks, fileEnd recfmt.Position) error {
	payload, _, err := resolvePayload(rd, dh, fileEnd)
	if err != nil {
		return wrap("buildPackIndex", err, withPos(dh.Pos), withOID(dh.OID))
	}

	if len(payload) == 0 {
		graph.Remove(dh.OID.IOID())
		return nil
	}

	refs := hooks.ReferencesExtractor(payload)
	ioids := make([]uint64, len(refs))
	for i, r := range refs {
		ioids[i] = r.IOID()
	}

	graph.Set(dh.OID.IOID(), ioids)

	return nil
}
