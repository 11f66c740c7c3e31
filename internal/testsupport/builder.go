package testsupport

import (
	"github.com/calvinalkan/objpack/recfmt"
	"github.com/calvinalkan/objpack/recfmt/recfmttest"
)

// Builder re-exports recfmt/recfmttest.Builder so pack's tests build fixture
// logs through the same in-memory writer recfmt's own tests use, instead of
// hand-assembling byte slices a second time.
type Builder = recfmttest.Builder

// NewBuilder returns an empty fixture log, magic header already written.
func NewBuilder() *Builder {
	return recfmttest.NewBuilder()
}

// OID is a small convenience constructor over a plain integer, used
// pervasively across pack's fixtures to keep test tables readable.
func OID(n uint64) recfmt.OID {
	return recfmt.OIDFromIOID(n)
}

// TID is the TID counterpart of OID.
func TID(n uint64) recfmt.TID {
	return recfmt.TIDFromUint64(n)
}
