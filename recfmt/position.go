package recfmt

// Position is a 64-bit byte offset into the log file.
type Position int64

// MetadataSize is the length of the fixed file header (magic bytes) that
// precedes the first transaction record. Copied verbatim to pack output.
const MetadataSize Position = 4

// FileMagic is the 4-byte magic written at offset 0 of every log file.
// Unlike the teacher's cache formats, this magic has no version nibble of
// its own — the transactional log format predates this packer and is
// owned by the host storage engine (see spec.md §1 "out of scope").
var FileMagic = [4]byte{'O', 'P', 'K', '1'}

// Add returns pos+n.
func (pos Position) Add(n int64) Position {
	return pos + Position(n)
}
