package pack

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/objpack/recfmt"
)

// Sentinel errors, checked with errors.Is, matching spec.md §7's error
// taxonomy. CorruptedData and ErrVersionsUnsupported are recfmt's, not
// redefined here.
var (
	// ErrAlreadyPacking is returned when a second Pack call observes the
	// main lock's in-progress flag already set.
	ErrAlreadyPacking = errors.New("pack: already packing")

	// ErrInvalidPackTime is returned for a zero cutoff TID.
	ErrInvalidPackTime = errors.New("pack: invalid pack time")

	// ErrReadOnly reports read-only storage. Driver.Pack does not check
	// whether the storage is read-only and never returns it.
	ErrReadOnly = errors.New("pack: storage is read-only")

	// ErrWorkerFailed wraps every error returned by, and any panic
	// recovered from, the worker goroutine; the underlying error stays
	// reachable through errors.Is/As. It is the renamed counterpart of
	// spec.md §7's PackSubprocessFailed, now that phases 1-5 run on an
	// in-process goroutine instead of a child process.
	ErrWorkerFailed = errors.New("pack: worker failed")
)

// Error wraps a lower-level error with the phase and, where relevant, the
// position/OID that were being processed. Mirrors pkg/mddb/errors.go's
// *Error{ID,Path,Err} wrap/unwrap/functional-option shape.
type Error struct {
	Op  string
	Pos recfmt.Position
	OID recfmt.OID
	Err error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Err.Error()

	if e.Pos != 0 {
		msg = fmt.Sprintf("%s (pos=%d)", msg, e.Pos)
	}

	if e.OID != recfmt.ZeroOID {
		msg = fmt.Sprintf("%s (oid=%s)", msg, e.OID)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

type errOpt func(*Error)

func withPos(pos recfmt.Position) errOpt {
	return func(e *Error) { e.Pos = pos }
}

func withOID(oid recfmt.OID) errOpt {
	return func(e *Error) { e.OID = oid }
}

func wrap(op string, err error, opts ...errOpt) error {
	if err == nil {
		return nil
	}

	e := &Error{Op: op, Err: err}
	for _, opt := range opts {
		opt(e)
	}

	return e
}
