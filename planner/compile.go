package planner

import (
	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/value"
	"github.com/andreheringer/LocustDB/vm"
)

// compileExpr recursively lowers e into
// operators appended to b, returning the buffer holding e's evaluated
// result under the active filter f.
func (b *builder) compileExpr(e expr.Expr, f filter) (colRef, error) {
	switch v := e.(type) {
	case expr.Const:
		// A constant materializes at full partition length; applying
		// the active filter keeps every compiled buffer in one plan at
		// the same (filtered) row count.
		c, err := b.compileConst(v)
		if err != nil {
			return colRef{}, err
		}
		return b.applyFilter(c, f), nil
	case expr.ColName:
		c, err := b.scanColumn(v.Name)
		if err != nil {
			return colRef{}, err
		}
		return b.applyFilter(c, f), nil
	case *expr.Func1:
		return b.compileFunc1(v, f)
	case *expr.Func2:
		return b.compileFunc2(v, f)
	case *expr.Aggregate:
		return colRef{}, errors.Fatalf("compileExpr: aggregate reached plan compilation; normalization should have extracted it")
	default:
		return colRef{}, errors.Fatalf("compileExpr: unreachable expr variant %T", e)
	}
}

func (b *builder) compileConst(c expr.Const) (colRef, error) {
	enc := constEncoding(c.Val)
	out := b.sp.Alloc(enc)
	b.push(vm.NewConstOp(c.Val, out))
	return colRef{ref: out, enc: enc}, nil
}

func constEncoding(v value.RawVal) types.EncodingType {
	switch v.Kind {
	case value.KindInt:
		return types.I64
	case value.KindFloat:
		return types.F64
	case value.KindStr:
		return types.Str
	default:
		return types.Null
	}
}

func (b *builder) compileFunc1(v *expr.Func1, f filter) (colRef, error) {
	arg, err := b.compileExpr(v.Arg, f)
	if err != nil {
		return colRef{}, err
	}
	if !arg.enc.IsNumeric() {
		return colRef{}, errors.TypeErrorf("%s not supported for type %v", v.Op, arg.enc)
	}
	var outEnc types.EncodingType
	switch v.Op {
	case expr.Negate:
		outEnc = types.I64
		if arg.enc.NonNullable() == types.F64 {
			outEnc = types.F64
		}
	case expr.ToYear:
		outEnc = types.I64
	default:
		return colRef{}, errors.Fatalf("compileFunc1: unreachable UnaryOp %v", v.Op)
	}
	out := b.sp.Alloc(outEnc)
	b.push(vm.NewUnaryOp(v.Op, arg.ref, out))
	result := colRef{ref: out, enc: outEnc}
	if arg.enc.Nullable() {
		result = b.fuseNulls(result, arg)
	}
	return result, nil
}

func (b *builder) compileFunc2(v *expr.Func2, f filter) (colRef, error) {
	lhs, err := b.compileExpr(v.LHS, f)
	if err != nil {
		return colRef{}, err
	}
	rhs, err := b.compileExpr(v.RHS, f)
	if err != nil {
		return colRef{}, err
	}

	// Unify operand encodings first (numeric widening toward I64/F64),
	// then dispatch on the unified
	// tags; the dispatch table reports any residual mismatch or
	// unsupported class with its own documented error messages.
	ulhs, urhs := lhs, rhs
	if v.Op != expr.And && v.Op != expr.Or {
		ulhs, urhs = b.unifyOperands(lhs, rhs)
	}
	outEnc, err := binaryOpDispatch(v.Op).Resolve(map[string]types.EncodingType{
		"lhs": ulhs.enc.NonNullable(),
		"rhs": urhs.enc.NonNullable(),
	})
	if err != nil {
		return colRef{}, errors.TypeErrorf("%s", err)
	}

	out := b.sp.Alloc(outEnc)
	b.push(vm.NewBinaryOp(v.Op, ulhs.ref, urhs.ref, out))
	result := colRef{ref: out, enc: outEnc}

	// Comparisons return U8, or NullableU8 if any operand is nullable;
	// arithmetic likewise propagates nullability into its result. Each
	// nullable operand contributes one null-fuse pass; the
	// fuses compose because FuseNullsOp intersects validity.
	for _, operand := range []colRef{lhs, rhs} {
		if operand.enc.Nullable() {
			result = b.fuseNulls(result, operand)
		}
	}
	return result, nil
}

// unifyOperands inserts coercion casts so both operands share one
// non-nullable tag: mixed int/float promotes to F64, differing integer
// widths widen to I64. Non-numeric mismatches pass through untouched
// for the dispatch table to report.
func (b *builder) unifyOperands(lhs, rhs colRef) (colRef, colRef) {
	le, re := lhs.enc.NonNullable(), rhs.enc.NonNullable()
	if le == re {
		return lhs, rhs
	}
	if !le.IsNumeric() || !re.IsNumeric() {
		return lhs, rhs
	}
	target := types.I64
	if le == types.F64 || re == types.F64 {
		target = types.F64
	}
	return b.castTo(lhs, target), b.castTo(rhs, target)
}

// castTo widens c to target via a CastOp if needed. The cast output
// carries no validity bitmap; callers that need nullability fuse it
// back from the original operand afterwards.
func (b *builder) castTo(c colRef, target types.EncodingType) colRef {
	if c.enc.NonNullable() == target {
		return c
	}
	out := b.sp.Alloc(target)
	b.push(vm.NewCastOp(c.ref, out, target))
	return colRef{ref: out, enc: target}
}

// fuseNulls merges the validity of a nullable operand into c, yielding
// the nullable counterpart of c's encoding.
func (b *builder) fuseNulls(c colRef, nullable colRef) colRef {
	enc, ok := c.enc.AsNullable()
	if !ok {
		return c
	}
	out := b.sp.Alloc(enc)
	b.push(vm.NewFuseNullsOp(c.ref, nullable.ref, out))
	return colRef{ref: out, enc: enc}
}

// compileFilterExpr compiles e (a boolean-valued expression, or nil) into
// the active filter state for subsequent column reads: nil means
// filterNone; otherwise the expression is evaluated with no filter
// applied and its U8 result becomes a mask filter.
func (b *builder) compileFilterExpr(e expr.Expr) (filter, error) {
	if e == nil {
		return noFilter(), nil
	}
	if c, ok := e.(expr.Const); ok {
		if !c.Val.IsNull() && (c.Val.Int != 0 || c.Val.Float != 0) {
			// A literal truthy constant filter (Const(1), the
			// post-pass's placeholder filter) selects every row; skip
			// materializing a mask entirely.
			return noFilter(), nil
		}
		// A falsy or NULL constant selects nothing: an all-zero mask.
		mask := b.sp.Alloc(types.U8)
		b.push(vm.NewConstOp(value.Int(0), mask))
		return maskFilter(mask), nil
	}
	mask, err := b.compileExpr(e, noFilter())
	if err != nil {
		return filter{}, err
	}
	if mask.enc.NonNullable() != types.U8 {
		return filter{}, errors.TypeErrorf("WHERE clause must evaluate to a boolean, got %v", mask.enc)
	}
	return maskFilter(mask.ref), nil
}
