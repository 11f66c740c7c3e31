package pack

import (
	"io"

	"github.com/calvinalkan/objpack/recfmt"
)

// logWriter appends transaction records to an io.WriterAt output, tracking
// the write position explicitly rather than relying on a file cursor —
// spec.md §4.3 item 4 requires "lazily emit the transaction header, then
// back-patch the length at transaction end", which needs positional writes
// interleaved with sequential ones. os.File satisfies io.WriterAt without
// disturbing its own Seek cursor, so this works transparently over a real
// file and over an in-memory test double alike.
type logWriter struct {
	w   io.WriterAt
	pos recfmt.Position
}

// newLogWriter returns a logWriter starting at pos (typically
// recfmt.MetadataSize for a brand new output file, whose header the caller
// writes separately).
func newLogWriter(w io.WriterAt, pos recfmt.Position) *logWriter {
	return &logWriter{w: w, pos: pos}
}

// Pos returns the current write position — the offset the next write (or
// the transaction about to begin) will land at.
func (lw *logWriter) Pos() recfmt.Position {
	return lw.pos
}

func (lw *logWriter) writeAt(buf []byte, pos recfmt.Position) error {
	if _, err := lw.w.WriteAt(buf, int64(pos)); err != nil {
		return err
	}

	return nil
}

func (lw *logWriter) append(buf []byte) error {
	if err := lw.writeAt(buf, lw.pos); err != nil {
		return err
	}

	lw.pos = lw.pos.Add(int64(len(buf)))

	return nil
}

// txnWriter accumulates one outgoing transaction: a placeholder header is
// emitted lazily on the first record (BeginTxn itself writes nothing), data
// records are appended as they're produced, and End() back-patches the
// real length into the header and writes the trailer.
type txnWriter struct {
	lw       *logWriter
	start    recfmt.Position
	tid      recfmt.TID
	status   recfmt.TxnStatus
	userLen  uint16
	descLen  uint16
	extLen   uint16
	meta     []byte
	headerAt bool // whether the placeholder header has been written yet
}

// BeginTxn starts a new outgoing transaction. meta is the raw
// user/description/extension metadata blob to carry through verbatim, and
// userLen/descLen/extLen are its original three-way split — both zero/nil
// for phase 4, which drops metadata entirely (phases 5 and 6 carry it
// through unchanged).
func (lw *logWriter) BeginTxn(tid recfmt.TID, status recfmt.TxnStatus, userLen, descLen, extLen uint16, meta []byte) *txnWriter {
	return &txnWriter{lw: lw, tid: tid, status: status, userLen: userLen, descLen: descLen, extLen: extLen, meta: meta}
}

// ensureHeader lazily reserves space for the transaction header (and
// writes its metadata) the first time a record is about to be appended, so
// a transaction that ends up contributing zero surviving records never
// touches the output at all (spec.md §4.3 item 4: "if no records yet
// written from this transaction, lazily emit the header").
func (tw *txnWriter) ensureHeader() error {
	if tw.headerAt {
		return nil
	}

	tw.start = tw.lw.Pos()

	placeholder := recfmt.TxnHeader{
		Pos:     tw.start,
		TID:     tw.tid,
		Status:  tw.status,
		UserLen: tw.userLen,
		DescLen: tw.descLen,
		ExtLen:  tw.extLen,
	}

	if err := tw.lw.append(recfmt.EncodeTxnHeader(placeholder)); err != nil {
		return err
	}

	if len(tw.meta) > 0 {
		if err := tw.lw.append(tw.meta); err != nil {
			return err
		}
	}

	tw.headerAt = true

	return nil
}

// PutRecord appends a fully-inlined data record (no backpointer) for oid,
// returning the position it was written at — the value to store in the
// new index.
func (tw *txnWriter) PutRecord(oid recfmt.OID, tid recfmt.TID, payload []byte) (recfmt.Position, error) {
	if err := tw.ensureHeader(); err != nil {
		return 0, err
	}

	pos := tw.lw.Pos()

	h := recfmt.DataHeader{
		Pos:        pos,
		OID:        oid,
		TID:        tid,
		PrevPos:    0,
		TxnPos:     tw.start,
		PayloadLen: uint64(len(payload)),
	}

	if err := tw.lw.append(recfmt.EncodeDataHeader(h)); err != nil {
		return 0, err
	}

	if err := tw.lw.append(payload); err != nil {
		return 0, err
	}

	return pos, nil
}

// PutDeletion appends a George Bailey marker (zero payload, zero
// backpointer) for oid.
func (tw *txnWriter) PutDeletion(oid recfmt.OID, tid recfmt.TID) (recfmt.Position, error) {
	if err := tw.ensureHeader(); err != nil {
		return 0, err
	}

	pos := tw.lw.Pos()

	h := recfmt.DataHeader{
		Pos:        pos,
		OID:        oid,
		TID:        tid,
		PrevPos:    0,
		TxnPos:     tw.start,
		PayloadLen: 0,
	}

	if err := tw.lw.append(recfmt.EncodeDataHeader(h)); err != nil {
		return 0, err
	}

	if err := tw.lw.append(recfmt.EncodeTrailer(0)); err != nil {
		return 0, err
	}

	return pos, nil
}

// Empty reports whether no record has been written for this transaction
// yet — End is a no-op in that case (the transaction contributed nothing).
func (tw *txnWriter) Empty() bool {
	return !tw.headerAt
}

// End finalizes the transaction: back-patches the real length into the
// header written by ensureHeader and appends the trailer. Returns the
// transaction's start position (0 if it turned out to be Empty).
func (tw *txnWriter) End() (recfmt.Position, error) {
	if tw.Empty() {
		return 0, nil
	}

	length := uint64(tw.lw.Pos() - tw.start)

	h := recfmt.TxnHeader{
		Pos:     tw.start,
		TID:     tw.tid,
		Len:     length,
		Status:  tw.status,
		UserLen: tw.userLen,
		DescLen: tw.descLen,
		ExtLen:  tw.extLen,
	}

	if err := tw.lw.writeAt(recfmt.EncodeTxnHeader(h), tw.start); err != nil {
		return 0, err
	}

	if err := tw.lw.append(recfmt.EncodeTrailer(length)); err != nil {
		return 0, err
	}

	return tw.start, nil
}
