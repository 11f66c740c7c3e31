package pack

import (
	"errors"

	"github.com/calvinalkan/objpack/recfmt"
)

// copyRest is phase 6 (spec.md §4.3 item 6): the live-tail merge. It
// repeatedly reads transactions starting at pos — the offset the worker's
// own snapshot (copyFromPacktime) stopped at — until a read runs past the
// file's current end, which is NORMAL loop termination here rather than
// corruption (spec.md §7: "a CorruptedData at exactly the current
// end-of-file is NORMAL and signals loop termination").
//
// fileSize reports the live file's current length; the caller re-reads it
// on every iteration because the merge loop must not assume a stable
// end-of-file — writers may still be appending. cycle, if non-nil, is
// invoked every releaseEvery transactions so the caller can release and
// re-acquire the commit lock between batches, bounding how long any writer
// is blocked (spec.md §5).
func copyRest(rd *recfmt.Reader, pos recfmt.Position, fileSize func() (recfmt.Position, error), out *logWriter, idx *Index, releaseEvery int, cycle func() error) (recfmt.Position, error) {
	txnsSinceCycle := 0

	for {
		end, err := fileSize()
		if err != nil {
			return 0, wrap("copyRest", err, withPos(pos))
		}

		h, err := rd.ReadTxnHeader(pos, end)
		if err != nil {
			var corrupt *recfmt.CorruptedData
			if errors.As(err, &corrupt) && corrupt.AtEOF(end) {
				return pos, nil
			}

			return 0, wrap("copyRest", err, withPos(pos))
		}

		if err := copyFromTxn(rd, h, end, out, idx); err != nil {
			return 0, err
		}

		pos = h.End()
		txnsSinceCycle++

		if cycle != nil && releaseEvery > 0 && txnsSinceCycle >= releaseEvery {
			if err := cycle(); err != nil {
				return 0, wrap("copyRest", err, withPos(pos))
			}

			txnsSinceCycle = 0
		}
	}
}
