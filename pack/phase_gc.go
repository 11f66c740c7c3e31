package pack

import (
	"github.com/calvinalkan/objpack/gc"
	"github.com/calvinalkan/objpack/refgraph"
)

// runGC is phase 3 (spec.md §4.3 item 3): a thin wrapper invoking the mark
// phase over idx/graph and returning the reachable-object index that
// copyToPacktime will replay against. graph.Clear() is called by gc.Mark
// itself once the walk completes.
func runGC(idx *Index, graph refgraph.Store) (*Index, error) {
	reachable, err := gc.Mark(idx, graph)
	if err != nil {
		return nil, wrap("gc", err)
	}

	out := NewIndex()
	out.Entries = reachable

	return out, nil
}
