package planner

import (
	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/vm"
)

// groupingKey is the result of compileGroupingKey: the
// per-row group index buffer and one decoded "unique" buffer per
// group-by component (in group-index order, used both to reconstruct
// the original logical grouping columns after aggregation and, via its
// length, as the aggregate operators' group count).
type groupingKey struct {
	groupOf buffer.Ref
	uniques []colRef
	// isDense reports whether groupOf was produced by DenseGroupOp,
	// whose group-index space may contain gaps (integer values in the
	// packed range with no matching row). Aggregation over a dense key
	// must compact those empty groups out before the result is usable;
	// a hash-grouped key never has gaps, so no compaction is needed.
	isDense bool
}

// isDenseEligible reports whether col's domain is a bounded integer
// range DenseGroupOp/DenseGroupMultiOp can offset-and-pack, promoting
// U8 to I64 first. Nullable columns are excluded: a null row has no integer
// to pack, so they take the null-aware hash path instead.
func isDenseEligible(col colRef) bool {
	if col.enc.Nullable() {
		return false
	}
	return col.enc.NonNullable() == types.I64 || col.enc.NonNullable() == types.U8
}

// compileGroupingKey compiles the given group-by expressions (already
// filtered) and chooses a dense-packed-key or hash-grouping strategy.
// The dense packed-key strategy applies whenever every grouping column
// is a bounded integer domain, regardless of column count;
// single-column grouping over any other column falls back to
// SipHash-based hash grouping, and multi-column grouping over a mix
// that includes a non-dense-eligible column returns NotImplemented
// (see DESIGN.md).
func (b *builder) compileGroupingKey(cols []colRef) (groupingKey, error) {
	if len(cols) == 0 {
		return groupingKey{}, errors.Fatalf("compileGroupingKey: no grouping columns")
	}

	allDense := true
	for _, c := range cols {
		if !isDenseEligible(c) {
			allDense = false
			break
		}
	}

	if allDense {
		if len(cols) == 1 {
			return b.compileDenseGroupingKey(cols[0])
		}
		return b.compileDenseGroupingKeyMulti(cols)
	}
	if len(cols) > 1 {
		return groupingKey{}, errors.NotImplementedf("multi-column non-order-preserving group-by")
	}

	col := cols[0]
	groupOf := b.sp.Alloc(types.USize)
	unique := b.sp.Alloc(col.enc)
	b.push(vm.NewHashGroupOp(col.ref, groupOf, unique))
	return groupingKey{
		groupOf: groupOf,
		uniques: []colRef{{ref: unique, enc: col.enc}},
	}, nil
}

// compileDenseGroupingKey wires a DenseGroupOp over a single dense
// column, promoting it to I64 first if needed.
func (b *builder) compileDenseGroupingKey(col colRef) (groupingKey, error) {
	promoted := col.ref
	if col.enc.NonNullable() != types.I64 {
		cast := b.sp.Alloc(types.I64)
		b.push(vm.NewCastOp(col.ref, cast, types.I64))
		promoted = cast
	}
	groupOf := b.sp.Alloc(types.USize)
	unique := b.sp.Alloc(types.I64)
	b.push(vm.NewDenseGroupOp(promoted, groupOf, unique))
	return groupingKey{
		groupOf: groupOf,
		uniques: []colRef{{ref: unique, enc: types.I64}},
		isDense: true,
	}, nil
}

// compileDenseGroupingKeyMulti promotes every column to I64 as needed
// and wires a single DenseGroupMultiOp across all of them; a
// multi-column dense key packs with the same group order a single
// column gets from DenseGroupOp.
func (b *builder) compileDenseGroupingKeyMulti(cols []colRef) (groupingKey, error) {
	groupOf := b.sp.Alloc(types.USize)

	ins := make([]buffer.Ref, len(cols))
	uniqueRefs := make([]buffer.Ref, len(cols))
	uniques := make([]colRef, len(cols))
	for i, col := range cols {
		promoted := col.ref
		if col.enc.NonNullable() != types.I64 {
			cast := b.sp.Alloc(types.I64)
			b.push(vm.NewCastOp(col.ref, cast, types.I64))
			promoted = cast
		}
		ins[i] = promoted
		uniqueRefs[i] = b.sp.Alloc(types.I64)
		uniques[i] = colRef{ref: uniqueRefs[i], enc: types.I64}
	}

	b.push(vm.NewDenseGroupMultiOp(ins, groupOf, uniqueRefs))
	return groupingKey{
		groupOf: groupOf,
		uniques: uniques,
		isDense: true,
	}, nil
}
