package pack

import "github.com/calvinalkan/objpack/recfmt"

// ReferencesExtractor extracts the OIDs a payload references, so the mark
// phase can walk the object graph without this package knowing anything
// about the payload encoding (spec.md §6: "references_extractor(payload) →
// iterable[OID]").
type ReferencesExtractor func(payload []byte) []recfmt.OID

// Transform optionally rewrites a payload as it is copied into the packed
// output (spec.md §6). Applied only in copyToPacktime — see SPEC_FULL.md's
// resolved Open Question on per-phase transform application.
type Transform func(payload []byte) []byte

// Untransform reverses Transform; owned by the host storage at load time,
// never called by this package, but named here so callers wiring Transform
// in have an obvious place to keep its inverse alongside it.
type Untransform func(payload []byte) []byte

// BlobIsRecord classifies a payload as a blob reference, enabling the
// sideband ".removed" deletion log: copyToPacktime appends the OID+TID of
// every pre-cutoff record it drops (superseded or unreachable) whose
// payload is a blob (spec.md §6).
type BlobIsRecord func(payload []byte) bool

// Hooks bundles the injected collaborators a pack run may supply. All
// fields are optional; a nil ReferencesExtractor disables reference-graph
// construction entirely (index-only pack, no GC).
type Hooks struct {
	ReferencesExtractor ReferencesExtractor
	Transform           Transform
	BlobIsRecord        BlobIsRecord
}

// GCEnabled reports whether reference-graph bookkeeping should run.
func (h Hooks) GCEnabled() bool {
	return h.ReferencesExtractor != nil
}
