package planner

import (
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/types"
)

// This file holds the typed-dispatch tables the planner resolves
// operator encodings through: one table per binary-operator
// category keyed on the operand encodings, and one keyed on the
// aggregator value itself. Operand unification (compileFunc2's
// coercion casts) runs before dispatch, so each table only ever sees
// identical tags per variable group; a caller-visible tag mismatch
// surfaces as the dispatch facility's own "Expected identical types"
// error.

func operands(class types.Class[types.EncodingType]) []types.VarDecl[types.EncodingType] {
	return []types.VarDecl[types.EncodingType]{{Vars: []string{"lhs", "rhs"}, Class: class}}
}

func yieldEnc[T comparable](enc types.EncodingType) func(map[string]T) (types.EncodingType, error) {
	return func(map[string]T) (types.EncodingType, error) { return enc, nil }
}

func mustDispatch[T comparable](op string, prods []types.Production[T, types.EncodingType]) *types.Dispatch[T, types.EncodingType] {
	d, err := types.NewDispatch(op, prods)
	if err != nil {
		panic(err)
	}
	return d
}

// classBool is the encoding a WHERE-clause conjunct or comparison
// result carries; AND/OR dispatch over it.
var classBool = types.NewClass("Bool", types.U8)

// classStrCmp admits string-typed comparison operands (equality and
// ordering over the shared byte arena).
var classStrCmp = types.NewClass("Str", types.Str)

// binaryOpDispatch returns the dispatch table for op, built on demand;
// the table's name feeds the "<op> not supported for type <tag>"
// fallback message.
func binaryOpDispatch(op expr.BinaryOp) *types.Dispatch[types.EncodingType, types.EncodingType] {
	name := op.String()
	switch {
	case op.IsComparison():
		return mustDispatch(name, []types.Production[types.EncodingType, types.EncodingType]{
			{Decls: operands(types.ClassInteger), Body: yieldEnc[types.EncodingType](types.U8)},
			{Decls: operands(types.ClassFloat), Body: yieldEnc[types.EncodingType](types.U8)},
			{Decls: operands(classStrCmp), Body: yieldEnc[types.EncodingType](types.U8)},
		})
	case op == expr.And || op == expr.Or:
		return mustDispatch(name, []types.Production[types.EncodingType, types.EncodingType]{
			{Decls: operands(classBool), Body: yieldEnc[types.EncodingType](types.U8)},
		})
	default:
		return mustDispatch(name, []types.Production[types.EncodingType, types.EncodingType]{
			{Decls: operands(types.ClassInteger), Body: yieldEnc[types.EncodingType](types.I64)},
			{Decls: operands(types.ClassFloat), Body: yieldEnc[types.EncodingType](types.F64)},
		})
	}
}

// Aggregator type classes from the glossary; aggregator variables
// dispatch on the aggregator value itself rather than an encoding tag.
var (
	classSumI64 = types.NewClass("SumI64", expr.SumI64)

	classIntAggregator = types.NewClass("IntAggregator",
		expr.Count, expr.SumI64, expr.MaxI64, expr.MinI64)

	classFloatAggregator = types.NewClass("FloatAggregator",
		expr.Count, expr.SumF64, expr.MaxF64, expr.MinF64)
)

func aggDecl(class types.Class[expr.Aggregator]) []types.VarDecl[expr.Aggregator] {
	return []types.VarDecl[expr.Aggregator]{{Vars: []string{"agg"}, Class: class}}
}

// aggOutDispatch declares the buffer encoding each aggregator's output
// is written in. SumI64 is declared F64 rather than I64 because whether
// a given SUM will overflow int64 is data-dependent and unknown at
// plan-construction time (see DESIGN.md); vm.AggregateOp still
// accumulates in int64 until a partial sum would overflow, for
// precision, but always writes its output as F64. Productions resolve
// in order, so the SumI64 arm shadows its IntAggregator membership.
var aggOutDispatch = mustDispatch("aggregate", []types.Production[expr.Aggregator, types.EncodingType]{
	{Decls: aggDecl(classSumI64), Body: yieldEnc[expr.Aggregator](types.F64)},
	{Decls: aggDecl(classIntAggregator), Body: yieldEnc[expr.Aggregator](types.I64)},
	{Decls: aggDecl(classFloatAggregator), Body: yieldEnc[expr.Aggregator](types.F64)},
})

// aggOutEncoding is the encoding an aggregator's output buffer is
// declared with at plan-construction time and written in by
// vm.AggregateOp.Execute; the two must always agree, since every
// downstream consumer (compaction, projection, result assembly) reads
// the buffer's declared tag rather than re-deriving it.
func aggOutEncoding(a expr.Aggregator) types.EncodingType {
	enc, err := aggOutDispatch.Resolve(map[string]expr.Aggregator{"agg": a})
	if err != nil {
		// The aggregator enum is a closed set fully covered above.
		panic(err)
	}
	return enc
}
