// Package planner compiles expression trees into an operator DAG:
// expression lowering, grouping-key synthesis, and the wiring of
// projection, ordering and top-N operators into a vm.Operator chain for
// one partition at a time.
package planner

import (
	"github.com/andreheringer/LocustDB/buffer"
)

// filterKind tags which variant of the active filter state is live
// during compilation: no filter, a U8/NullableU8 boolean mask, or an
// explicit row-index buffer.
type filterKind int

const (
	filterNone filterKind = iota
	filterMask
	filterIndices
)

// filter is the active row-selection state threaded through compileExpr.
// A column read honors it by selecting/compacting upstream; once a sort
// occurs the filter collapses to filterIndices (see applyOrdering).
type filter struct {
	kind filterKind
	ref  buffer.Ref // valid when kind != filterNone
}

func noFilter() filter { return filter{kind: filterNone} }

func maskFilter(ref buffer.Ref) filter { return filter{kind: filterMask, ref: ref} }

func indicesFilter(ref buffer.Ref) filter { return filter{kind: filterIndices, ref: ref} }
