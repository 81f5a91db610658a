package vm

import (
	"fmt"
	"time"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/types"
)

// BinaryOp evaluates one arithmetic or comparison expr.BinaryOp
// element-wise over two equal-length inputs, writing numeric results as
// I64/F64 and comparison results as U8 (boolean), matching the
// production each typed-dispatch Class selects in the planner.
type BinaryOp struct {
	baseOp
	Op          expr.BinaryOp
	LHS, RHS    buffer.Ref
	Out         buffer.Ref
}

func NewBinaryOp(op expr.BinaryOp, lhs, rhs, out buffer.Ref) *BinaryOp {
	return &BinaryOp{
		baseOp: baseOp{name: fmt.Sprintf("Binary(%s %s %s)", lhs, op, rhs), inputs: []buffer.Ref{lhs, rhs}, outputs: []buffer.Ref{out}, streamIn: true, stream: true, allocates: true},
		Op:     op, LHS: lhs, RHS: rhs, Out: out,
	}
}

func (o *BinaryOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, partitionLen)
}

func (o *BinaryOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	lhs, rhs, out := sp.Get(o.LHS), sp.Get(o.RHS), sp.Get(o.Out)
	isFloat := lhs.Encoding.NonNullable() == types.F64 || rhs.Encoding.NonNullable() == types.F64

	// A constant operand is materialized at full partition length
	// regardless of the active filter, so under a filter the column
	// side is the shorter one; iterate over that.
	n := lhs.Len
	if rhs.Len < n {
		n = rhs.Len
	}
	for i := 0; i < n; i++ {
		if o.Op.IsComparison() {
			var c int
			switch {
			case lhs.Encoding.IsStringLike():
				c = cmpStr(lhs.StrAt(i), rhs.StrAt(i))
			case isFloat:
				c = cmpF64(floatAt(lhs, i), floatAt(rhs, i))
			default:
				c = cmpI64(intAt(lhs, i), intAt(rhs, i))
			}
			out.AppendU8(boolToU8(compareHolds(o.Op, c)))
			continue
		}
		switch o.Op {
		case expr.And:
			out.AppendU8(boolToU8(lhs.U8[i] != 0 && rhs.U8[i] != 0))
		case expr.Or:
			out.AppendU8(boolToU8(lhs.U8[i] != 0 || rhs.U8[i] != 0))
		default:
			if isFloat {
				out.AppendF64(arithF64(o.Op, floatAt(lhs, i), floatAt(rhs, i)))
			} else {
				out.AppendI64(arithI64(o.Op, intAt(lhs, i), intAt(rhs, i)))
			}
		}
	}
	return nil
}

func floatAt(b *buffer.Buffer, i int) float64 {
	if b.Encoding.NonNullable() == types.F64 {
		return b.F64[i]
	}
	return float64(intAt(b, i))
}

func intAt(b *buffer.Buffer, i int) int64 {
	switch b.Encoding.NonNullable() {
	case types.U8:
		return int64(b.U8[i])
	case types.USize:
		return int64(b.USize[i])
	default:
		return b.I64[i]
	}
}

func boolToU8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func compareHolds(op expr.BinaryOp, c int) bool {
	switch op {
	case expr.Eq:
		return c == 0
	case expr.Neq:
		return c != 0
	case expr.Lt:
		return c < 0
	case expr.Gt:
		return c > 0
	case expr.Lte:
		return c <= 0
	case expr.Gte:
		return c >= 0
	default:
		return false
	}
}

func arithI64(op expr.BinaryOp, a, b int64) int64 {
	switch op {
	case expr.Add:
		return a + b
	case expr.Sub:
		return a - b
	case expr.Mul:
		return a * b
	case expr.Div:
		if b == 0 {
			return 0
		}
		return a / b
	default:
		return 0
	}
}

func arithF64(op expr.BinaryOp, a, b float64) float64 {
	switch op {
	case expr.Add:
		return a + b
	case expr.Sub:
		return a - b
	case expr.Mul:
		return a * b
	case expr.Div:
		return a / b
	default:
		return 0
	}
}

// UnaryOp evaluates one expr.UnaryOp element-wise over In.
type UnaryOp struct {
	baseOp
	Op      expr.UnaryOp
	In, Out buffer.Ref
}

func NewUnaryOp(op expr.UnaryOp, in, out buffer.Ref) *UnaryOp {
	return &UnaryOp{
		baseOp: baseOp{name: fmt.Sprintf("Unary(%s %s)", op, in), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{out}, streamIn: true, stream: true, allocates: true},
		Op:     op, In: in, Out: out,
	}
}

func (o *UnaryOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, partitionLen)
}

func (o *UnaryOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, out := sp.Get(o.In), sp.Get(o.Out)
	for i := 0; i < in.Len; i++ {
		switch o.Op {
		case expr.Negate:
			if in.Encoding.NonNullable() == types.F64 {
				out.AppendF64(-in.F64[i])
			} else {
				out.AppendI64(-intAt(in, i))
			}
		case expr.ToYear:
			// In carries a Unix timestamp in seconds; ToYear maps it
			// to the UTC calendar year.
			out.AppendI64(int64(time.Unix(intAt(in, i), 0).UTC().Year()))
		}
	}
	return nil
}
