package pack

import (
	"github.com/calvinalkan/objpack/recfmt"
	"github.com/calvinalkan/objpack/refgraph"
)

// updateReferences is phase 2 (spec.md §4.3 item 2): scans transactions
// strictly after cutoffPos, through fileEnd, and unions their references
// into graph rather than overwriting — a post-cutoff revision's outbound
// references must be preserved alongside whatever the pre-cutoff scan
// already recorded for that OID, since both may be needed to keep an
// object reachable.
//
// Unlike buildPackIndex, this phase never touches idx: post-cutoff
// transactions are not part of the "current-at-cutoff" snapshot, and a
// deletion marker here does not retract anything phase 1 already decided —
// it only means this particular revision carries no references of its own.
func updateReferences(rd *recfmt.Reader, cutoffPos, fileEnd recfmt.Position, graph refgraph.Store, hooks Hooks) error {
	if !hooks.GCEnabled() {
		return nil
	}

	pos := cutoffPos

	for pos < fileEnd {
		h, err := rd.ReadTxnHeader(pos, fileEnd)
		if err != nil {
			return wrap("updateReferences", err, withPos(pos))
		}

		if err := foldTxnIntoRefGraph(rd, h, graph, hooks, fileEnd); err != nil {
			return err
		}

		pos = h.End()
	}

	return nil
}

func foldTxnIntoRefGraph(rd *recfmt.Reader, h recfmt.TxnHeader, graph refgraph.Store, hooks Hooks, fileEnd recfmt.Position) error {
	pos := h.DataStart()

	for pos < h.DataEnd() {
		dh, err := rd.ReadDataHeader(pos, h.DataEnd())
		if err != nil {
			return wrap("updateReferences", err, withPos(pos))
		}

		if dh.IsBackpointer() {
			back, err := rd.ReadBackpointer(dh)
			if err != nil {
				return wrap("updateReferences", err, withPos(pos), withOID(dh.OID))
			}

			if recfmt.IsGeorgeBailey(back) {
				pos = dh.End()
				continue
			}
		}

		payload, _, err := resolvePayload(rd, dh, fileEnd)
		if err != nil {
			return wrap("updateReferences", err, withPos(pos), withOID(dh.OID))
		}

		if len(payload) > 0 {
			refs := hooks.ReferencesExtractor(payload)
			ioids := make([]uint64, len(refs))
			for i, r := range refs {
				ioids[i] = r.IOID()
			}

			refgraph.Merge(graph, dh.OID.IOID(), ioids)
		}

		pos = dh.End()
	}

	return nil
}

// resolvePayload returns a data record's effective payload, chasing its
// backpointer chain if necessary, along with the TID the payload was
// ultimately found at.
func resolvePayload(rd *recfmt.Reader, dh recfmt.DataHeader, fileEnd recfmt.Position) ([]byte, recfmt.TID, error) {
	if !dh.IsBackpointer() {
		payload, err := rd.ReadPayload(dh)
		if err != nil {
			return nil, recfmt.ZeroTID, err
		}

		return payload, dh.TID, nil
	}

	back, err := rd.ReadBackpointer(dh)
	if err != nil {
		return nil, recfmt.ZeroTID, err
	}

	return rd.LoadBack(back, fileEnd)
}
