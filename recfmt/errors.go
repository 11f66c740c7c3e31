package recfmt

import (
	"errors"
	"fmt"
)

// ErrCorrupted is the sentinel checked with errors.Is. Callers that need
// the failing position/reason should use errors.As with *CorruptedData.
var ErrCorrupted = errors.New("recfmt: corrupted data")

// ErrVersionsUnsupported indicates a data record carries a non-zero
// version length. Versioned storage was never implemented upstream and
// this packer does not support it either (spec.md §7).
var ErrVersionsUnsupported = errors.New("recfmt: versions unsupported")

// CorruptedData reports malformed or inconsistent data at a specific file
// position. It mirrors the teacher's wrap-with-context idiom
// (pkg/mddb/errors.go's *Error{ID,Path,Err}) but keyed on a log position
// instead of a document ID/path.
type CorruptedData struct {
	Pos    Position
	Reason string
}

func (e *CorruptedData) Error() string {
	return fmt.Sprintf("corrupted data at %d: %s", e.Pos, e.Reason)
}

// Is makes CorruptedData match errors.Is(err, ErrCorrupted).
func (e *CorruptedData) Is(target error) bool {
	return target == ErrCorrupted
}

// NewCorrupted constructs a *CorruptedData at pos with a formatted reason.
func NewCorrupted(pos Position, format string, args ...any) *CorruptedData {
	return &CorruptedData{Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

// AtEOF reports whether this corruption is exactly the "ran off the end of
// the file" condition at the given expected end position. During tail
// merge (spec.md §4.3 item 6), a CorruptedData at precisely the known file
// end is the NORMAL loop-termination signal, not a real error.
func (e *CorruptedData) AtEOF(expectedEnd Position) bool {
	return e.Pos == expectedEnd
}
