// Package recfmt implements the physical layout of an append-only
// transactional object log: transaction headers, data records, and the
// OID/TID/Position primitives used to address them.
//
// Nothing in this package knows what a pack is, what garbage collection
// looks like, or what the payload bytes mean. It only knows how to read and
// validate records at known offsets, and how to detect corruption.
package recfmt

import "encoding/binary"

// OIDSize is the fixed width of an object identifier.
const OIDSize = 8

// OID is an opaque 8-byte object identifier. It is also treated as an
// ordered byte string for index iteration, and decoded as a big-endian
// uint64 ("ioid") when used as a reference-graph node key.
type OID [OIDSize]byte

// ZeroOID is the database root, ioid 0.
var ZeroOID = OID{}

// IOID decodes the OID as a big-endian unsigned 64-bit integer, the form
// used as a key in the reference graph.
func (o OID) IOID() uint64 {
	return binary.BigEndian.Uint64(o[:])
}

// OIDFromIOID encodes an ioid back into an OID.
func OIDFromIOID(ioid uint64) OID {
	var o OID
	binary.BigEndian.PutUint64(o[:], ioid)

	return o
}

// Bytes returns the OID as a byte slice, useful for ordered-map keys and
// hex formatting in diagnostics.
func (o OID) Bytes() []byte {
	return o[:]
}

// Less reports whether o sorts before other, treating both as big-endian
// ordered byte strings (identical to the numeric ioid order).
func (o OID) Less(other OID) bool {
	return o.IOID() < other.IOID()
}

// String returns the hex representation, e.g. "00000000000003e8".
func (o OID) String() string {
	const hexDigits = "0123456789abcdef"

	buf := make([]byte, OIDSize*2)
	for i, b := range o {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0f]
	}

	return string(buf)
}
