package recfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// adviseMargin is how far behind the current scan position the cache
// advisor evicts pages to (spec.md §4.1: "~50 MB past the previous advise
// point").
const adviseMargin = 50 * 1024 * 1024

// Advisor is injected into Reader to evict already-scanned pages from the
// OS page cache. Implementations must be best-effort: an unsupported
// platform or a failing syscall is never an error (see recfmt/advise_*.go).
type Advisor interface {
	Advise(fd uintptr, offset, length int64)
}

// Reader provides sequential and random access to the records of a log
// file. It owns no file descriptor lifecycle decisions beyond advising the
// OS about pages it no longer needs.
type Reader struct {
	r       io.ReaderAt
	fd      uintptr
	advisor Advisor

	lastAdvisePos Position
}

// NewReader wraps r (and, if non-zero, fd for fadvise) with an optional
// cache advisor. advisor may be nil to disable cache advisory entirely.
func NewReader(r io.ReaderAt, fd uintptr, advisor Advisor) *Reader {
	return &Reader{r: r, fd: fd, advisor: advisor}
}

// maybeAdvise evicts pages behind pos once the scan has moved far enough
// past the last advise point. Best-effort: errors from the underlying
// syscall are swallowed by the Advisor implementation itself.
func (rd *Reader) maybeAdvise(pos Position) {
	if rd.advisor == nil {
		return
	}

	if pos-rd.lastAdvisePos < adviseMargin {
		return
	}

	evictUpTo := pos - adviseMargin
	if evictUpTo <= 0 {
		return
	}

	rd.advisor.Advise(rd.fd, int64(MetadataSize), int64(evictUpTo))
	rd.lastAdvisePos = pos
}

// readAt reads exactly len(buf) bytes starting at pos, translating any
// short read (including io.EOF) into a *CorruptedData at pos, so the
// tail-merge loop (spec.md §4.3 item 6) can recognize a read that starts
// exactly at the file end as the normal termination condition.
func (rd *Reader) readAt(pos Position, buf []byte) error {
	n, err := rd.r.ReadAt(buf, int64(pos))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("recfmt: read at %d: %w", pos, err)
	}

	if n < len(buf) {
		return NewCorrupted(pos, "short read: got %d of %d bytes", n, len(buf))
	}

	return nil
}

// ReadRaw reads n opaque bytes at pos, with no interpretation. Used for
// transaction metadata (user/description/extension fields), which this
// package treats as an uninspected blob to copy verbatim.
func (rd *Reader) ReadRaw(pos Position, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := rd.readAt(pos, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// ReadNum performs a raw 8-byte big-endian read at pos.
func (rd *Reader) ReadNum(pos Position) (uint64, error) {
	var buf [8]byte
	if err := rd.readAt(pos, buf[:]); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(buf[:]), nil
}

// ReadTxnHeader reads and validates the transaction header at pos.
//
// Fails with *CorruptedData if the status byte is invalid, the TID is
// zero, or the declared length would run past fileEnd.
func (rd *Reader) ReadTxnHeader(pos Position, fileEnd Position) (TxnHeader, error) {
	rd.maybeAdvise(pos)

	buf := make([]byte, TxnHeaderSize)
	if err := rd.readAt(pos, buf); err != nil {
		return TxnHeader{}, err
	}

	h := DecodeTxnHeader(pos, buf)

	if h.TID.IsZero() {
		return TxnHeader{}, NewCorrupted(pos, "zero tid")
	}

	if !h.Status.Valid() {
		return TxnHeader{}, NewCorrupted(pos, "invalid status byte %q", byte(h.Status))
	}

	if h.End() > fileEnd {
		return TxnHeader{}, NewCorrupted(pos, "declared length %d runs past file end %d", h.Len, fileEnd)
	}

	if h.DataStart() > h.DataEnd() {
		return TxnHeader{}, NewCorrupted(pos, "metadata (%d bytes) exceeds transaction length", h.MetaSize())
	}

	return h, nil
}

// ReadDataHeader reads and validates the data record header at pos.
//
// Fails with *CorruptedData on an impossible position or a non-zero
// version length (ErrVersionsUnsupported, wrapped).
func (rd *Reader) ReadDataHeader(pos Position, txnEnd Position) (DataHeader, error) {
	if pos+DataHeaderSize > txnEnd {
		return DataHeader{}, NewCorrupted(pos, "data header runs past transaction end %d", txnEnd)
	}

	buf := make([]byte, DataHeaderSize)
	if err := rd.readAt(pos, buf); err != nil {
		return DataHeader{}, err
	}

	h := DecodeDataHeader(pos, buf)

	if h.VersionLen != 0 {
		return DataHeader{}, fmt.Errorf("%w: %w", ErrVersionsUnsupported, NewCorrupted(pos, "version length %d", h.VersionLen))
	}

	if h.End() > txnEnd {
		return DataHeader{}, NewCorrupted(pos, "payload runs past transaction end %d", txnEnd)
	}

	return h, nil
}

// ReadPayload reads the inline payload bytes of a non-backpointer data
// record.
func (rd *Reader) ReadPayload(h DataHeader) ([]byte, error) {
	if h.IsBackpointer() {
		return nil, fmt.Errorf("recfmt: record at %d has no inline payload", h.Pos)
	}

	buf := make([]byte, h.PayloadLen)
	if err := rd.readAt(h.PayloadStart(), buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// ReadBackpointer reads the 8-byte backpointer field of a zero-payload
// data record. A zero return value is the George Bailey deletion marker.
func (rd *Reader) ReadBackpointer(h DataHeader) (Position, error) {
	if !h.IsBackpointer() {
		return 0, fmt.Errorf("recfmt: record at %d has an inline payload, not a backpointer", h.Pos)
	}

	v, err := rd.ReadNum(h.PayloadStart())
	if err != nil {
		return 0, err
	}

	return Position(v), nil
}

// LoadBack follows a chain of backpointers starting at back (a position of
// an earlier data record of the same OID) until it finds a concrete
// payload or hits back == 0 (a deletion). It returns the resolved payload
// (nil for a deletion) and the TID of the record the payload was found at.
//
// fileEnd bounds every header read along the chain.
func (rd *Reader) LoadBack(back Position, fileEnd Position) ([]byte, TID, error) {
	for {
		if back == 0 {
			return nil, ZeroTID, nil
		}

		// The data header's owning transaction end isn't known without
		// first reading the transaction header it points into; read it
		// generously bounded by fileEnd and let ReadDataHeader's own
		// length check catch real corruption.
		h, err := rd.ReadDataHeader(back, fileEnd)
		if err != nil {
			return nil, ZeroTID, err
		}

		if !h.IsBackpointer() {
			payload, err := rd.ReadPayload(h)
			if err != nil {
				return nil, ZeroTID, err
			}

			return payload, h.TID, nil
		}

		next, err := rd.ReadBackpointer(h)
		if err != nil {
			return nil, ZeroTID, err
		}

		if IsGeorgeBailey(next) {
			return nil, h.TID, nil
		}

		back = next
	}
}
