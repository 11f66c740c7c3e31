package recfmt

import "encoding/binary"

// TxnStatus is the one-byte status field of a transaction header.
type TxnStatus byte

const (
	// StatusCommitted is a normal, fully committed transaction.
	StatusCommitted TxnStatus = ' '
	// StatusPacked marks a transaction as already packed — the packer's
	// own stamp, applied by copyToPacktime (spec.md §4.3 item 4).
	StatusPacked TxnStatus = 'p'
	// StatusCheckpoint marks a checkpoint in progress.
	StatusCheckpoint TxnStatus = 'c'
)

// Valid reports whether the status byte is one recognized by this format.
func (s TxnStatus) Valid() bool {
	switch s {
	case StatusCommitted, StatusPacked, StatusCheckpoint:
		return true
	default:
		return false
	}
}

// TxnHeaderSize is the fixed portion of a transaction header, before the
// variable-length user/description/extension metadata:
//
//	TID(8) | len(8) | status(1) | user-len(2) | desc-len(2) | ext-len(2)
const TxnHeaderSize = 8 + 8 + 1 + 2 + 2 + 2

// TxnTrailerSize is the width of the trailing duplicate length field used
// for reverse scans.
const TxnTrailerSize = 8

// TxnHeader describes one transaction record at file offset Pos.
type TxnHeader struct {
	Pos Position
	TID TID
	// Len is the total transaction length, header through last data
	// record, EXCLUDING the 8-byte trailer (matches the on-disk field).
	Len     uint64
	Status  TxnStatus
	UserLen uint16
	DescLen uint16
	ExtLen  uint16
}

// MetaStart returns the position of the variable-length metadata that
// follows the fixed header fields.
func (h TxnHeader) MetaStart() Position {
	return h.Pos.Add(TxnHeaderSize)
}

// MetaSize is the combined width of the user/description/extension fields.
func (h TxnHeader) MetaSize() int {
	return int(h.UserLen) + int(h.DescLen) + int(h.ExtLen)
}

// DataStart returns the position of the first data record.
func (h TxnHeader) DataStart() Position {
	return h.MetaStart().Add(int64(h.MetaSize()))
}

// End returns the position one past the trailer, i.e. the start of the
// next transaction.
func (h TxnHeader) End() Position {
	return h.Pos.Add(int64(h.Len) + TxnTrailerSize)
}

// DataEnd returns the position of the trailer, i.e. one past the last data
// record.
func (h TxnHeader) DataEnd() Position {
	return h.Pos.Add(int64(h.Len))
}

// EncodeTxnHeader serializes the fixed header fields (not the variable
// metadata) to an TxnHeaderSize-byte buffer.
func EncodeTxnHeader(h TxnHeader) []byte {
	buf := make([]byte, TxnHeaderSize)
	copy(buf[0:8], h.TID[:])
	binary.BigEndian.PutUint64(buf[8:16], h.Len)
	buf[16] = byte(h.Status)
	binary.BigEndian.PutUint16(buf[17:19], h.UserLen)
	binary.BigEndian.PutUint16(buf[19:21], h.DescLen)
	binary.BigEndian.PutUint16(buf[21:23], h.ExtLen)

	return buf
}

// DecodeTxnHeader parses a TxnHeaderSize-byte buffer read at pos.
func DecodeTxnHeader(pos Position, buf []byte) TxnHeader {
	var h TxnHeader
	h.Pos = pos
	copy(h.TID[:], buf[0:8])
	h.Len = binary.BigEndian.Uint64(buf[8:16])
	h.Status = TxnStatus(buf[16])
	h.UserLen = binary.BigEndian.Uint16(buf[17:19])
	h.DescLen = binary.BigEndian.Uint16(buf[19:21])
	h.ExtLen = binary.BigEndian.Uint16(buf[21:23])

	return h
}

// EncodeTrailer serializes the trailing duplicate length field.
func EncodeTrailer(length uint64) []byte {
	buf := make([]byte, TxnTrailerSize)
	binary.BigEndian.PutUint64(buf, length)

	return buf
}

// DataHeaderSize is the fixed portion of a data record, before the
// payload bytes:
//
//	OID(8) | TID(8) | prev-pos(8) | txn-pos(8) | version-len(2) | payload-len(8)
const DataHeaderSize = 8 + 8 + 8 + 8 + 2 + 8

// BackpointerSize is the width of the trailing backpointer field written
// only when PayloadLen == 0.
const BackpointerSize = 8

// DataHeader describes one data record at file offset Pos.
type DataHeader struct {
	Pos        Position
	OID        OID
	TID        TID
	PrevPos    Position // prev-revision-pos: 0 if none
	TxnPos     Position // start of the owning transaction
	VersionLen uint16   // must be 0; non-zero is ErrVersionsUnsupported
	PayloadLen uint64
}

// PayloadStart returns the position of the payload bytes (or, if
// PayloadLen is 0, the position of the backpointer field).
func (h DataHeader) PayloadStart() Position {
	return h.Pos.Add(DataHeaderSize)
}

// IsBackpointer reports whether this record carries a backpointer instead
// of an inline payload (PayloadLen == 0).
func (h DataHeader) IsBackpointer() bool {
	return h.PayloadLen == 0
}

// End returns the position one past this data record (payload or
// backpointer, whichever applies).
func (h DataHeader) End() Position {
	if h.IsBackpointer() {
		return h.PayloadStart().Add(BackpointerSize)
	}

	return h.PayloadStart().Add(int64(h.PayloadLen))
}

// EncodeDataHeader serializes the fixed data-record fields.
func EncodeDataHeader(h DataHeader) []byte {
	buf := make([]byte, DataHeaderSize)
	copy(buf[0:8], h.OID[:])
	copy(buf[8:16], h.TID[:])
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.PrevPos))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.TxnPos))
	binary.BigEndian.PutUint16(buf[32:34], h.VersionLen)
	binary.BigEndian.PutUint64(buf[34:42], h.PayloadLen)

	return buf
}

// DecodeDataHeader parses a DataHeaderSize-byte buffer read at pos.
func DecodeDataHeader(pos Position, buf []byte) DataHeader {
	var h DataHeader
	h.Pos = pos
	copy(h.OID[:], buf[0:8])
	copy(h.TID[:], buf[8:16])
	h.PrevPos = Position(binary.BigEndian.Uint64(buf[16:24]))
	h.TxnPos = Position(binary.BigEndian.Uint64(buf[24:32]))
	h.VersionLen = binary.BigEndian.Uint16(buf[32:34])
	h.PayloadLen = binary.BigEndian.Uint64(buf[34:42])

	return h
}

// IsGeorgeBailey reports whether a zero-payload record is a deletion
// marker (8-byte zero backpointer) rather than a genuine backpointer. back
// is the decoded backpointer field.
func IsGeorgeBailey(back Position) bool {
	return back == 0
}
