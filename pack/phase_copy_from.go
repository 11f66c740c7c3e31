package pack

import "github.com/calvinalkan/objpack/recfmt"

// copyFromPacktime is phase 5 (spec.md §4.3 item 5): the worker's snapshot
// of the log tail, [cutoffPos, fileEnd). Unlike copyToPacktime, nothing is
// dropped here — every transaction in range survives by definition — but
// every record's payload is still resolved so the output never depends on
// positions in the original file: a record stored as a backpointer is
// inlined, status is preserved verbatim (not forced to 'p'), metadata is
// copied byte-for-byte via Reader.ReadRaw, and Transform is never applied
// (SPEC_FULL.md's resolved Open Question: only phase 4 transforms
// payloads; tail transactions keep their original encoding).
//
// idx is updated in place: a revision adds/overwrites its OID's entry, a
// George Bailey marker removes it — mirroring buildPackIndex's own fold,
// since this phase is really "buildPackIndex's logic, plus actually
// writing the output" for the range buildPackIndex never touches.
func copyFromPacktime(rd *recfmt.Reader, cutoffPos, fileEnd recfmt.Position, out *logWriter, idx *Index) error {
	pos := cutoffPos

	for pos < fileEnd {
		h, err := rd.ReadTxnHeader(pos, fileEnd)
		if err != nil {
			return wrap("copyFromPacktime", err, withPos(pos))
		}

		if err := copyFromTxn(rd, h, fileEnd, out, idx); err != nil {
			return err
		}

		pos = h.End()
	}

	return nil
}

func copyFromTxn(rd *recfmt.Reader, h recfmt.TxnHeader, fileEnd recfmt.Position, out *logWriter, idx *Index) error {
	meta, err := rd.ReadRaw(h.MetaStart(), h.MetaSize())
	if err != nil {
		return wrap("copyFromPacktime", err, withPos(h.Pos))
	}

	tw := out.BeginTxn(h.TID, h.Status, h.UserLen, h.DescLen, h.ExtLen, meta)
	pos := h.DataStart()

	for pos < h.DataEnd() {
		dh, err := rd.ReadDataHeader(pos, h.DataEnd())
		if err != nil {
			return wrap("copyFromPacktime", err, withPos(pos))
		}

		payload, _, err := resolvePayload(rd, dh, fileEnd)
		if err != nil {
			return wrap("copyFromPacktime", err, withPos(pos), withOID(dh.OID))
		}

		if len(payload) == 0 {
			if _, err := tw.PutDeletion(dh.OID, dh.TID); err != nil {
				return wrap("copyFromPacktime", err, withPos(pos), withOID(dh.OID))
			}

			idx.Delete(dh.OID)
		} else {
			newPos, err := tw.PutRecord(dh.OID, dh.TID, payload)
			if err != nil {
				return wrap("copyFromPacktime", err, withPos(pos), withOID(dh.OID))
			}

			idx.Set(dh.OID, newPos)
		}

		pos = dh.End()
	}

	_, err = tw.End()

	return err
}
