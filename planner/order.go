package planner

import (
	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/vm"
)

// applyOrdering folds a NormalFormQuery's ORDER BY/LIMIT clause into f,
// returning the filter downstream column reads should use.
// With no ORDER BY it only normalizes f to an absolute-row-number
// Indices filter, so limit/offset slicing at result time always has a
// concrete row set to slice regardless of which filter variant the
// WHERE clause produced.
//
// Order keys are applied last-to-first, each a stable sort of the
// current row order by that key; applying them in this sequence means
// an earlier (more significant) key's sort breaks ties left by a later
// one, the standard multi-key stable-sort composition. A single key
// under a finite LIMIT uses TopNOp instead of a full SortOp when it is
// actually cheaper: both produce
// the same row order, TopNOp just avoids materializing a full
// permutation when only a small prefix of it is ever read.
func (b *builder) applyOrdering(f filter, partitionLen int, orderBy []expr.OrderKey, limit expr.LimitClause) (filter, error) {
	var absIdx buffer.Ref
	switch f.kind {
	case filterNone:
		absIdx = b.sp.Alloc(types.USize)
		b.push(vm.NewIndicesOp(absIdx))
	case filterMask:
		absIdx = b.sp.Alloc(types.USize)
		b.push(vm.NewNonzeroIndicesOp(f.ref, absIdx))
	case filterIndices:
		absIdx = f.ref
	}

	if len(orderBy) == 0 {
		return indicesFilter(absIdx), nil
	}

	finiteLimit := limit.Limit != expr.Unbounded
	n := int(limit.Offset + limit.Limit)
	useTopN := len(orderBy) == 1 && finiteLimit && n*2 < partitionLen

	for i := len(orderBy) - 1; i >= 0; i-- {
		key := orderBy[i]
		keyCol, err := b.compileExpr(key.Expr, indicesFilter(absIdx))
		if err != nil {
			return filter{}, err
		}

		perm := b.sp.Alloc(types.USize)
		if useTopN {
			b.push(vm.NewTopNOp(keyCol.ref, perm, n, key.Desc))
		} else {
			b.push(vm.NewSortOp(keyCol.ref, perm, key.Desc))
		}

		newAbs := b.sp.Alloc(types.USize)
		b.push(vm.NewSelectIndicesOp(absIdx, perm, newAbs))
		absIdx = newAbs
	}
	return indicesFilter(absIdx), nil
}
