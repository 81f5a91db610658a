package vm

import (
	"fmt"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/store"
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/value"
)

// ColumnScanOp copies one resident column's sections into a single
// contiguous scratchpad buffer. It is always the root of a plan's input
// side; Inputs() is empty because the source column lives in the
// partition, not in the scratchpad. Raw scans copy the physical
// (still-encoded) section bytes and leave decoding to a downstream
// DecodeOp, so operators that can run on the encoded form could consume
// the raw buffer directly; a non-raw scan decodes each section as it
// copies.
type ColumnScanOp struct {
	baseOp
	Column *store.Column
	Out    buffer.Ref
	Raw    bool
}

// NewColumnScanOp returns a decoding scan over col, writing logical
// values into out.
func NewColumnScanOp(col *store.Column, out buffer.Ref) *ColumnScanOp {
	return &ColumnScanOp{
		baseOp: baseOp{name: fmt.Sprintf("ColumnScan(%s)", col.Name), outputs: []buffer.Ref{out}, stream: true, allocates: true},
		Column: col,
		Out:    out,
	}
}

// NewRawColumnScanOp returns a scan over col that copies physical
// section data without decoding; out must carry the sections' physical
// encoding, and the planner pairs it with a DecodeOp.
func NewRawColumnScanOp(col *store.Column, out buffer.Ref) *ColumnScanOp {
	return &ColumnScanOp{
		baseOp: baseOp{name: fmt.Sprintf("RawColumnScan(%s)", col.Name), outputs: []buffer.Ref{out}, stream: true, allocates: true},
		Column: col,
		Out:    out,
		Raw:    true,
	}
}

func (o *ColumnScanOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, o.Column.Len())
}

func (o *ColumnScanOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	out := sp.Get(o.Out)
	for _, sec := range o.Column.Sections {
		data := sec.Data
		if sec.Codec != nil && !o.Raw {
			data = sec.Codec.Decode(data)
		}
		buffer.AppendAll(out, data)
	}
	return nil
}

// ConstOp materializes a constant-folded plan node as a partitionLen-long
// repeated-value buffer, so a constant operand of a vectorized binary
// expression lines up element-wise with its column operand.
type ConstOp struct {
	baseOp
	Val    value.RawVal
	Out    buffer.Ref
	length int
}

// NewConstOp returns an operator that fills out with partitionLen copies
// of val.
func NewConstOp(val value.RawVal, out buffer.Ref) *ConstOp {
	return &ConstOp{
		baseOp: baseOp{name: fmt.Sprintf("Const(%s)", val), outputs: []buffer.Ref{out}, stream: true, allocates: true},
		Val:    val,
		Out:    out,
	}
}

func (o *ConstOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	o.length = partitionLen
	sp.Init(o.Out, partitionLen)
}

func (o *ConstOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	out := sp.Get(o.Out)
	for i := 0; i < o.length; i++ {
		appendConst(out, o.Val)
	}
	return nil
}

func appendConst(dst *buffer.Buffer, v value.RawVal) {
	switch dst.Encoding.NonNullable() {
	case types.I64, types.ScalarI64:
		dst.AppendI64(v.Int)
	case types.F64:
		dst.AppendF64(v.Float)
	case types.Str, types.ScalarStr:
		dst.AppendStr(v.Str)
	case types.U8:
		dst.AppendU8(uint8(v.Int))
	case types.Null:
		dst.Len++
	}
}
