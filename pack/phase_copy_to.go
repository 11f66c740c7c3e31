package pack

import (
	"encoding/hex"
	"sort"

	"github.com/calvinalkan/objpack/recfmt"
)

// copyToPacktime is phase 4 (spec.md §4.3 item 4): a sequential scan of
// [recfmt.MetadataSize, cutoffPos), rewriting every data record whose
// position matches its entry in the reachable index (built by the mark
// phase) and dropping every superseded or unreachable one. Status is
// forced to recfmt.StatusPacked on every outgoing transaction; backpointer
// chains are resolved so every outgoing record carries an inline payload,
// and transaction metadata is dropped rather than copied (phase 4's output
// payloads already diverge from the original bytes whenever Transform is
// configured, so byte-identical metadata preservation buys nothing here —
// phases 5/6 preserve it).
//
// Objects the mark phase found reachable only through a post-cutoff
// reference, but which were already deleted before the cutoff (gc.Mark
// reports these with Position == 0, spec.md §4.3 item 3's George Bailey
// revival), have no physical pre-cutoff record to rewrite. copyToPacktime
// re-synthesizes a deletion marker for each of them in one trailing
// transaction so the packed output still carries an explicit tombstone
// rather than silently implying the object never existed.
//
// anyOutput reports whether anything at all was written (surviving records
// or revived tombstones).
//
// When hooks.BlobIsRecord is set, removedHex lists the hex OID+TID of every
// dropped record whose payload is a blob.
func copyToPacktime(rd *recfmt.Reader, cutoff recfmt.TID, cutoffPos recfmt.Position, idx *Index, out *logWriter, hooks Hooks) (newIdx *Index, removedHex []string, anyOutput bool, err error) {
	newIdx = NewIndex()
	startPos := out.Pos()
	pos := recfmt.MetadataSize

	for pos < cutoffPos {
		h, herr := rd.ReadTxnHeader(pos, cutoffPos)
		if herr != nil {
			return nil, nil, false, wrap("copyToPacktime", herr, withPos(pos))
		}

		removedHex, err = copyToTxn(rd, h, idx, out, hooks, removedHex, newIdx)
		if err != nil {
			return nil, nil, false, err
		}

		pos = h.End()
	}

	if revErr := emitRevivedTombstones(idx, newIdx, cutoff, out); revErr != nil {
		return nil, nil, false, revErr
	}

	return newIdx, removedHex, out.Pos() != startPos, nil
}

// copyToTxn rewrites the surviving records of a single pre-cutoff
// transaction.
func copyToTxn(rd *recfmt.Reader, h recfmt.TxnHeader, idx *Index, out *logWriter, hooks Hooks, removedHex []string, newIdx *Index) ([]string, error) {
	tw := out.BeginTxn(h.TID, recfmt.StatusPacked, 0, 0, 0, nil)
	pos := h.DataStart()

	for pos < h.DataEnd() {
		dh, err := rd.ReadDataHeader(pos, h.DataEnd())
		if err != nil {
			return removedHex, wrap("copyToPacktime", err, withPos(pos))
		}

		recorded, ok := idx.Get(dh.OID)
		if !ok || recorded != dh.Pos {
			if hooks.BlobIsRecord != nil {
				dropped, _, derr := resolvePayload(rd, dh, h.DataEnd())
				if derr != nil {
					return removedHex, wrap("copyToPacktime", derr, withPos(pos), withOID(dh.OID))
				}

				if len(dropped) > 0 && hooks.BlobIsRecord(dropped) {
					removedHex = append(removedHex, hex.EncodeToString(dh.OID.Bytes())+hex.EncodeToString(dh.TID[:]))
				}
			}

			pos = dh.End()
			continue // a later revision exists, or this OID isn't reachable
		}

		payload, _, err := resolvePayload(rd, dh, h.DataEnd())
		if err != nil {
			return removedHex, wrap("copyToPacktime", err, withPos(pos), withOID(dh.OID))
		}

		var newPos recfmt.Position

		if len(payload) == 0 {
			newPos, err = tw.PutDeletion(dh.OID, dh.TID)
		} else {
			if hooks.Transform != nil {
				payload = hooks.Transform(payload)
			}

			newPos, err = tw.PutRecord(dh.OID, dh.TID, payload)
		}

		if err != nil {
			return removedHex, wrap("copyToPacktime", err, withPos(pos), withOID(dh.OID))
		}

		newIdx.Set(dh.OID, newPos)

		pos = dh.End()
	}

	if _, err := tw.End(); err != nil {
		return removedHex, wrap("copyToPacktime", err, withPos(h.Pos))
	}

	return removedHex, nil
}

// emitRevivedTombstones writes one trailing transaction of George Bailey
// markers for every OID the mark phase reports reachable but with no
// physical pre-cutoff position (Position == 0 is gc.Mark's sentinel for
// "revived via a post-cutoff reference only" — recfmt.MetadataSize is 4,
// so 0 can never be a genuine record position).
func emitRevivedTombstones(idx, newIdx *Index, cutoff recfmt.TID, out *logWriter) error {
	var revived []recfmt.OID

	for oid, pos := range idx.Entries {
		if pos == 0 {
			revived = append(revived, oid)
		}
	}

	if len(revived) == 0 {
		return nil
	}

	sort.Slice(revived, func(i, j int) bool { return revived[i].Less(revived[j]) })

	tw := out.BeginTxn(cutoff, recfmt.StatusPacked, 0, 0, 0, nil)

	for _, oid := range revived {
		newPos, err := tw.PutDeletion(oid, cutoff)
		if err != nil {
			return err
		}

		newIdx.Set(oid, newPos)
	}

	_, err := tw.End()

	return err
}
