package vm

import (
	"fmt"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/types"
)

// DecodeOp applies a column section's codec to turn a physically-encoded
// input buffer into its logical representation, for plans that could not
// push a later operator down onto the encoded form directly (e.g. an
// arithmetic expression over a delta-coded column).
type DecodeOp struct {
	baseOp
	In, Out buffer.Ref
	Codec   buffer.Codec
}

func NewDecodeOp(in, out buffer.Ref, codec buffer.Codec) *DecodeOp {
	return &DecodeOp{
		baseOp: baseOp{name: fmt.Sprintf("Decode(%s)", in), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{out}, allocates: true},
		In:     in, Out: out, Codec: codec,
	}
}

func (o *DecodeOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, partitionLen)
}

func (o *DecodeOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in := sp.Get(o.In)
	decoded := o.Codec.Decode(in)
	sp.Set(o.Out, decoded)
	return nil
}

// CastOp widens In to a larger-width encoding of the same family (e.g.
// U8 to I64, I64 to F64), used when the planner unifies operand types
// ahead of a binary expression or an aggregate whose accumulator is
// wider than its input column.
type CastOp struct {
	baseOp
	In, Out buffer.Ref
	To      types.EncodingType
}

func NewCastOp(in, out buffer.Ref, to types.EncodingType) *CastOp {
	return &CastOp{
		baseOp: baseOp{name: fmt.Sprintf("Cast(%s -> %s)", in, to), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{out}, streamIn: true, stream: true, allocates: true},
		In:     in, Out: out, To: to,
	}
}

func (o *CastOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, partitionLen)
}

func (o *CastOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, out := sp.Get(o.In), sp.Get(o.Out)
	for i := 0; i < in.Len; i++ {
		switch o.To.NonNullable() {
		case types.I64:
			var v int64
			switch in.Encoding.NonNullable() {
			case types.U8:
				v = int64(in.U8[i])
			case types.USize:
				v = int64(in.USize[i])
			case types.I64:
				v = in.I64[i]
			}
			out.AppendI64(v)
		case types.F64:
			var v float64
			switch in.Encoding.NonNullable() {
			case types.U8:
				v = float64(in.U8[i])
			case types.USize:
				v = float64(in.USize[i])
			case types.I64:
				v = float64(in.I64[i])
			case types.F64:
				v = in.F64[i]
			}
			out.AppendF64(v)
		}
	}
	return nil
}

// FuseNullsOp merges a value buffer with a separately computed validity
// mask, producing the nullable counterpart of In's encoding. This is how
// the planner attaches nullability propagated from a nullable operand of
// a binary expression back onto the expression's result, rather than
// carrying a Valid slice through every intermediate operator.
type FuseNullsOp struct {
	baseOp
	In, Mask, Out buffer.Ref
}

func NewFuseNullsOp(in, mask, out buffer.Ref) *FuseNullsOp {
	return &FuseNullsOp{
		baseOp: baseOp{name: fmt.Sprintf("FuseNulls(%s, %s)", in, mask), inputs: []buffer.Ref{in, mask}, outputs: []buffer.Ref{out}, streamIn: true, stream: true, allocates: true},
		In:     in, Mask: mask, Out: out,
	}
}

func (o *FuseNullsOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, partitionLen)
}

func (o *FuseNullsOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, mask, out := sp.Get(o.In), sp.Get(o.Mask), sp.Get(o.Out)
	for i := 0; i < in.Len; i++ {
		// Combining validity with In's own bitmap (if it has one) lets
		// FuseNulls chain when both operands of an expression are
		// nullable: fuse once per nullable operand.
		valid := in.IsValid(i) && mask.IsValid(i)
		switch out.Encoding.NonNullable() {
		case types.U8:
			out.U8 = append(out.U8, in.U8[i])
			out.Valid = append(out.Valid, valid)
			out.Len++
		case types.I64:
			out.AppendNullableI64(in.I64[i], valid)
		case types.F64:
			out.AppendNullableF64(in.F64[i], valid)
		}
	}
	return nil
}
