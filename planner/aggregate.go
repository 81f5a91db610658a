package planner

import (
	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/vm"
)

// aggregatePlan is the compiled shape of an aggregate NormalFormQuery:
// one colRef per synthetic grouping column (_csN) and one colRef per
// synthetic aggregate column (_caN), keyed by the alias compileExpr's
// ColName reads resolve to once projection runs over the post-aggregate
// result.
type aggregatePlan struct {
	groupCols map[string]colRef // _csN -> decoded group-by column
	aggCols   map[string]colRef // _caN -> aggregate result
}

// compileAggregate builds the grouping + per-aggregator reduction chain
// for a NormalFormQuery whose Aggregate list is non-empty.
// q.Projection's entries name the group-by columns (they are the
// surviving non-aggregate select expressions after normalization); each
// is compiled once under the query's filter, then wired into a single
// grouping key.
func (b *builder) compileAggregate(q *aggregateQuery) (aggregatePlan, error) {
	f, err := b.compileFilterExpr(q.Filter)
	if err != nil {
		return aggregatePlan{}, err
	}

	groupCols := make(map[string]colRef, len(q.GroupBy))
	var compiled []colRef
	for _, g := range q.GroupBy {
		c, err := b.compileExpr(g.Expr, f)
		if err != nil {
			return aggregatePlan{}, err
		}
		compiled = append(compiled, c)
	}

	var key groupingKey
	if len(compiled) > 0 {
		key, err = b.compileGroupingKey(compiled)
		if err != nil {
			return aggregatePlan{}, err
		}
		for i, g := range q.GroupBy {
			groupCols[g.Name] = key.uniques[i]
		}
	}

	aggCols := make(map[string]colRef, len(q.Aggregates))
	var countSelector *buffer.Ref
	for _, a := range q.Aggregates {
		argCol, err := b.compileExpr(a.Info.Col.Expr, f)
		if err != nil {
			return aggregatePlan{}, err
		}
		// The parser has no column-type information, so it always emits
		// the integer variant of SUM/MIN/MAX; resolve it against the
		// argument's actual compiled encoding here, once the type is
		// known (SumI64 applies the same promotion again at runtime on
		// overflow; see vm.AggregateOp.OutEncoding).
		agg := resolveAggregator(a.Info.Aggregator, argCol.enc)
		out := b.sp.Alloc(aggOutEncoding(agg))
		if len(compiled) == 0 {
			// No GROUP BY: the whole filtered input is one group.
			zero := b.allZeroGroupOf(argCol)
			one := b.singleUnique()
			op := vm.NewAggregateOp(agg, argCol.ref, zero, one.ref, out)
			b.push(op)
		} else {
			op := vm.NewAggregateOp(agg, argCol.ref, key.groupOf, key.uniques[0].ref, out)
			b.push(op)
		}
		// A COUNT over a non-nullable input doubles as the selector:
		// its per-group total is nonzero exactly for the occupied
		// groups, so compaction can reuse it instead of running a
		// dedicated exists pass.
		if agg == expr.Count && !argCol.enc.Nullable() && countSelector == nil {
			ref := out
			countSelector = &ref
		}
		aggCols[a.Name] = colRef{ref: out, enc: aggOutEncoding(agg)}
	}

	// A dense-packed grouping key's index space may contain groups with
	// no matching row; only occupied slots survive. Drop the empty ones
	// from every group-by and aggregate output before returning.
	if len(compiled) > 0 && key.isDense {
		groupCols, aggCols, err = b.compactDenseGroups(key, q.GroupBy, countSelector, groupCols, aggCols)
		if err != nil {
			return aggregatePlan{}, err
		}
	}

	// Hash grouping assigns group indices in first-seen order, which is
	// not order-preserving; sort every output column by the
	// reconstructed group-by column (stable, ascending) so results are
	// deterministic regardless of row arrival order. The
	// dense path skips this: its packed key is already in ascending
	// value order.
	if len(compiled) > 0 && !key.isDense {
		groupCols, aggCols = b.sortGroupsAscending(q.GroupBy, groupCols, aggCols)
	}

	return aggregatePlan{groupCols: groupCols, aggCols: aggCols}, nil
}

// sortGroupsAscending permutes every grouping and aggregate output
// into ascending order of the first (and, for the hash path, only)
// group-by column.
func (b *builder) sortGroupsAscending(groupBy []groupByItem, groupCols, aggCols map[string]colRef) (map[string]colRef, map[string]colRef) {
	first := groupCols[groupBy[0].Name]
	perm := b.sp.Alloc(types.USize)
	b.push(vm.NewSortOp(first.ref, perm, false))

	for name, c := range groupCols {
		out := b.sp.Alloc(c.enc)
		b.push(vm.NewSelectIndicesOp(c.ref, perm, out))
		groupCols[name] = colRef{ref: out, enc: c.enc}
	}
	for name, c := range aggCols {
		out := b.sp.Alloc(c.enc)
		b.push(vm.NewSelectIndicesOp(c.ref, perm, out))
		aggCols[name] = colRef{ref: out, enc: c.enc}
	}
	return groupCols, aggCols
}

// compactDenseGroups drops the groups of a dense-packed grouping key
// that no input row mapped to, keeping only occupied slots. When one
// of the aggregates is a COUNT over a non-nullable input its output is
// reused as the selector (NonzeroCompactOp turns its nonzero entries
// into the surviving group indices); otherwise a dedicated exists pass
// builds a presence buffer and every output column is compacted
// against it. The selector only needs computing once (every unique
// buffer of a single grouping key shares the same group-index space),
// but each output column must be compacted independently.
func (b *builder) compactDenseGroups(key groupingKey, groupBy []groupByItem, countSelector *buffer.Ref, groupCols, aggCols map[string]colRef) (map[string]colRef, map[string]colRef, error) {
	if countSelector != nil {
		survivors := b.sp.Alloc(types.USize)
		b.push(vm.NewNonzeroCompactOp(*countSelector, survivors))

		for i, g := range groupBy {
			u := key.uniques[i]
			compactedUnique := b.sp.Alloc(u.enc)
			b.push(vm.NewSelectIndicesOp(u.ref, survivors, compactedUnique))
			groupCols[g.Name] = colRef{ref: compactedUnique, enc: u.enc}
		}
		for name, c := range aggCols {
			out := b.sp.Alloc(c.enc)
			b.push(vm.NewSelectIndicesOp(c.ref, survivors, out))
			aggCols[name] = colRef{ref: out, enc: c.enc}
		}
		return groupCols, aggCols, nil
	}

	presence := b.sp.Alloc(types.U8)
	b.push(vm.NewExistsOp(key.groupOf, key.uniques[0].ref, presence))

	for i, g := range groupBy {
		u := key.uniques[i]
		compactedUnique := b.sp.Alloc(u.enc)
		b.push(vm.NewCompactOp(u.ref, presence, compactedUnique))
		groupCols[g.Name] = colRef{ref: compactedUnique, enc: u.enc}
	}
	for name, c := range aggCols {
		out := b.sp.Alloc(c.enc)
		b.push(vm.NewCompactOp(c.ref, presence, out))
		aggCols[name] = colRef{ref: out, enc: c.enc}
	}
	return groupCols, aggCols, nil
}

// allZeroGroupOf returns a group-index buffer assigning every row of
// argCol to the single implicit group of an aggregate with no GROUP BY.
func (b *builder) allZeroGroupOf(argCol colRef) buffer.Ref {
	out := b.sp.Alloc(types.USize)
	b.push(vm.NewZerosOp(argCol.ref, out))
	return out
}

// singleUnique returns the one-element placeholder "unique" column an
// aggregate with no GROUP BY uses so AggregateOp sees NumGroups == 1.
func (b *builder) singleUnique() colRef {
	out := b.sp.Alloc(types.I64)
	b.push(vm.NewSingleGroupOp(out))
	return colRef{ref: out, enc: types.I64}
}

// resolveAggregator picks the int/float variant of a SUM/MIN/MAX
// aggregator matching argEnc's actual compiled encoding, overriding
// whatever default variant the parser emitted (Count is unaffected: it
// has no float counterpart).
func resolveAggregator(a expr.Aggregator, argEnc types.EncodingType) expr.Aggregator {
	isFloat := argEnc.NonNullable() == types.F64
	switch a {
	case expr.SumI64, expr.SumF64:
		if isFloat {
			return expr.SumF64
		}
		return expr.SumI64
	case expr.MinI64, expr.MinF64:
		if isFloat {
			return expr.MinF64
		}
		return expr.MinI64
	case expr.MaxI64, expr.MaxF64:
		if isFloat {
			return expr.MaxF64
		}
		return expr.MaxI64
	default:
		return a
	}
}
