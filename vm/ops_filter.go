package vm

import (
	"fmt"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/types"
)

// FilterOp selects the rows of In for which Mask holds a truthy (nonzero,
// valid) U8/NullableU8 value, writing the selected rows of In to Out in
// order. It is the boolean-mask selection operator; SelectIndicesOp is
// the index-gather variant used once a WHERE clause has been compacted
// to row indices.
type FilterOp struct {
	baseOp
	In, Mask, Out buffer.Ref
}

func NewFilterOp(in, mask, out buffer.Ref) *FilterOp {
	return &FilterOp{
		baseOp: baseOp{name: fmt.Sprintf("Filter(%s, %s)", in, mask), inputs: []buffer.Ref{in, mask}, outputs: []buffer.Ref{out}, streamIn: true, stream: true, allocates: true},
		In:     in, Mask: mask, Out: out,
	}
}

func (o *FilterOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, batchSize)
}

func (o *FilterOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, mask, out := sp.Get(o.In), sp.Get(o.Mask), sp.Get(o.Out)
	for i := 0; i < in.Len; i++ {
		if mask.IsValid(i) && mask.U8[i] != 0 {
			appendRow(out, in, i)
		}
	}
	return nil
}

// SelectIndicesOp gathers In at the row numbers listed in Indices
// (a USize buffer), writing the gathered rows to Out in index order.
type SelectIndicesOp struct {
	baseOp
	In, Indices, Out buffer.Ref
}

func NewSelectIndicesOp(in, indices, out buffer.Ref) *SelectIndicesOp {
	return &SelectIndicesOp{
		baseOp:  baseOp{name: fmt.Sprintf("Select(%s, %s)", in, indices), inputs: []buffer.Ref{in, indices}, outputs: []buffer.Ref{out}, allocates: true},
		In:      in, Indices: indices, Out: out,
	}
}

func (o *SelectIndicesOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, batchSize)
}

func (o *SelectIndicesOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, idx, out := sp.Get(o.In), sp.Get(o.Indices), sp.Get(o.Out)
	for _, i := range idx.USize {
		appendRow(out, in, i)
	}
	return nil
}

// appendRow copies row i of src onto the end of dst; see
// buffer.AppendRowFrom for the per-encoding logic.
func appendRow(dst, src *buffer.Buffer, i int) {
	buffer.AppendRowFrom(dst, src, i)
}

// NonzeroIndicesOp scans In (a U8/NullableU8 boolean mask) and writes the
// row numbers where it holds true to Out, in ascending order. It is the
// bridge from a WHERE-clause evaluation to SelectIndicesOp/a later
// grouping stage.
type NonzeroIndicesOp struct {
	baseOp
	In, Out buffer.Ref
}

func NewNonzeroIndicesOp(in, out buffer.Ref) *NonzeroIndicesOp {
	return &NonzeroIndicesOp{
		baseOp: baseOp{name: fmt.Sprintf("NonzeroIndices(%s)", in), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{out}, allocates: true},
		In:     in, Out: out,
	}
}

func (o *NonzeroIndicesOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, batchSize)
}

func (o *NonzeroIndicesOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, out := sp.Get(o.In), sp.Get(o.Out)
	for i := 0; i < in.Len; i++ {
		if in.IsValid(i) && in.U8[i] != 0 {
			out.AppendUSize(i)
		}
	}
	return nil
}

// ExistsOp marks, for each distinct grouping key 0..n-1 referenced by
// Indices, whether at least one input row mapped to it; used to detect
// grouping keys with zero matching rows before a CompactOp trims them
// out of the final group listing. n is read from SizeOf's length
// at Init time rather than passed as a literal, since a dense grouping
// operator's group count (the span of the packed key's integer range)
// is only known once that upstream operator has executed - the same
// defer-to-Init pattern AggregateOp uses for NumGroups.
type ExistsOp struct {
	baseOp
	Indices, SizeOf, Out buffer.Ref
	n                    int
}

// NewExistsOp returns an operator producing a U8 presence buffer sized
// to sizeOf's length at Init time, one entry per possible grouping key.
func NewExistsOp(indices, sizeOf, out buffer.Ref) *ExistsOp {
	return &ExistsOp{
		baseOp:  baseOp{name: fmt.Sprintf("Exists(%s)", indices), inputs: []buffer.Ref{indices, sizeOf}, outputs: []buffer.Ref{out}, allocates: true},
		Indices: indices, SizeOf: sizeOf, Out: out,
	}
}

func (o *ExistsOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	o.n = sp.Get(o.SizeOf).Len
	sp.Init(o.Out, o.n)
	out := sp.Get(o.Out)
	for i := 0; i < o.n; i++ {
		out.AppendU8(0)
	}
}

func (o *ExistsOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	idx, out := sp.Get(o.Indices), sp.Get(o.Out)
	for _, i := range idx.USize {
		out.U8[i] = 1
	}
	return nil
}

// NonzeroCompactOp reads a selector buffer (a COUNT aggregate's output
// when the planner reuses it, or any numeric presence buffer) and emits
// the dense subsequence of row numbers where it held a nonzero value,
// reinterpreting the selector as USize indices of its own true entries.
type NonzeroCompactOp struct {
	baseOp
	In, Out buffer.Ref
}

func NewNonzeroCompactOp(in, out buffer.Ref) *NonzeroCompactOp {
	return &NonzeroCompactOp{
		baseOp: baseOp{name: fmt.Sprintf("NonzeroCompact(%s)", in), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{out}, allocates: true},
		In:     in, Out: out,
	}
}

func (o *NonzeroCompactOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, batchSize)
}

func (o *NonzeroCompactOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, out := sp.Get(o.In), sp.Get(o.Out)
	for i := 0; i < in.Len; i++ {
		if isNonzero(in, i) {
			out.AppendUSize(i)
		}
	}
	return nil
}

// CompactOp is the general-purpose compaction operator: it keeps rows of
// In for which the same-length Select buffer (any numeric encoding) is
// nonzero, the non-boolean-mask generalization of FilterOp used when the
// selector was produced by grouping rather than a WHERE clause.
type CompactOp struct {
	baseOp
	In, Select, Out buffer.Ref
}

func NewCompactOp(in, sel, out buffer.Ref) *CompactOp {
	return &CompactOp{
		baseOp: baseOp{name: fmt.Sprintf("Compact(%s, %s)", in, sel), inputs: []buffer.Ref{in, sel}, outputs: []buffer.Ref{out}, allocates: true},
		In:     in, Select: sel, Out: out,
	}
}

func (o *CompactOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, batchSize)
}

func (o *CompactOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, sel, out := sp.Get(o.In), sp.Get(o.Select), sp.Get(o.Out)
	for i := 0; i < in.Len; i++ {
		if isNonzero(sel, i) {
			appendRow(out, in, i)
		}
	}
	return nil
}

func isNonzero(b *buffer.Buffer, i int) bool {
	switch b.Encoding.NonNullable() {
	case types.U8:
		return b.U8[i] != 0
	case types.I64:
		return b.I64[i] != 0
	case types.F64:
		return b.F64[i] != 0
	case types.USize:
		return b.USize[i] != 0
	default:
		return true
	}
}

// IndicesOp fills Out with 0..partitionLen-1, used to seed a
// SelectIndicesOp chain when no WHERE clause is present but the plan
// still needs explicit row numbers (e.g. to feed a hash-grouping stage
// alongside other index-producing branches).
type IndicesOp struct {
	baseOp
	Out    buffer.Ref
	length int
}

func NewIndicesOp(out buffer.Ref) *IndicesOp {
	return &IndicesOp{baseOp: baseOp{name: "Indices", outputs: []buffer.Ref{out}, allocates: true}, Out: out}
}

func (o *IndicesOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	o.length = partitionLen
	sp.Init(o.Out, partitionLen)
}

func (o *IndicesOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	out := sp.Get(o.Out)
	for i := 0; i < o.length; i++ {
		out.AppendUSize(i)
	}
	return nil
}
