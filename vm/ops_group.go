package vm

import (
	"fmt"

	"github.com/dchest/siphash"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/types"
)

// DenseGroupOp computes a packed grouping key for a single low-cardinality
// integer column by offsetting from its minimum value, the fast path
// for columns whose range fits the dense-array-index strategy
// (cardinality below 2^16; see the planner's choice between dense and
// hash grouping). GroupOf writes one USize row number per input
// row (its dense group index); Unique writes one I64 per distinct group,
// in group-index order, reconstructing the original value as min+index.
type DenseGroupOp struct {
	baseOp
	In, GroupOf, Unique buffer.Ref
}

func NewDenseGroupOp(in, groupOf, unique buffer.Ref) *DenseGroupOp {
	return &DenseGroupOp{
		baseOp:  baseOp{name: fmt.Sprintf("DenseGroup(%s)", in), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{groupOf, unique}, allocates: true},
		In:      in, GroupOf: groupOf, Unique: unique,
	}
}

func (o *DenseGroupOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.GroupOf, partitionLen)
	sp.Init(o.Unique, 0)
}

func (o *DenseGroupOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, groupOf, unique := sp.Get(o.In), sp.Get(o.GroupOf), sp.Get(o.Unique)
	if in.Len == 0 {
		return nil
	}
	min, max := in.I64[0], in.I64[0]
	for _, v := range in.I64 {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min + 1
	if span > denseGroupLimit {
		return fmt.Errorf("dense group: range %d exceeds dense grouping limit %d", span, denseGroupLimit)
	}
	for _, v := range in.I64 {
		groupOf.AppendUSize(int(v - min))
	}
	for i := int64(0); i < span; i++ {
		unique.AppendI64(min + i)
	}
	return nil
}

// DenseGroupMultiOp computes a packed grouping key across several
// low-cardinality integer columns at once, generalizing DenseGroupOp to
// more than one grouping column: the dense-packed-key strategy applies
// whenever the product of domain cardinalities stays below 2^16,
// regardless of column count. Each input column's domain is offset from
// its own minimum, and the per-column indices are combined with
// row-major mixed-radix packing (the first column is most significant),
// which preserves the same lexicographic group order a single dense
// column gets from DenseGroupOp. GroupOf writes one USize row number per
// input row; Uniques[j] writes one I64 per distinct group, decoding
// column j's original value at that group.
type DenseGroupMultiOp struct {
	baseOp
	Ins     []buffer.Ref
	GroupOf buffer.Ref
	Uniques []buffer.Ref
}

func NewDenseGroupMultiOp(ins []buffer.Ref, groupOf buffer.Ref, uniques []buffer.Ref) *DenseGroupMultiOp {
	return &DenseGroupMultiOp{
		baseOp:  baseOp{name: fmt.Sprintf("DenseGroupMulti(%d cols)", len(ins)), inputs: ins, outputs: append([]buffer.Ref{groupOf}, uniques...), allocates: true},
		Ins:     ins,
		GroupOf: groupOf,
		Uniques: uniques,
	}
}

func (o *DenseGroupMultiOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.GroupOf, partitionLen)
	for _, u := range o.Uniques {
		sp.Init(u, 0)
	}
}

// denseGroupLimit caps the product of per-column domain spans a dense
// packed key may address, matching DenseGroupOp's single-column limit.
const denseGroupLimit = 1 << 16

func (o *DenseGroupMultiOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	n := len(o.Ins)
	ins := make([]*buffer.Buffer, n)
	for j, ref := range o.Ins {
		ins[j] = sp.Get(ref)
	}
	groupOf := sp.Get(o.GroupOf)
	rows := ins[0].Len
	if rows == 0 {
		return nil
	}

	mins := make([]int64, n)
	spans := make([]int64, n)
	for j, in := range ins {
		min, max := in.I64[0], in.I64[0]
		for _, v := range in.I64 {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		mins[j] = min
		spans[j] = max - min + 1
	}

	total := int64(1)
	for _, s := range spans {
		total *= s
		if total > denseGroupLimit {
			return fmt.Errorf("dense group: combined range %d exceeds dense grouping limit %d", total, denseGroupLimit)
		}
	}

	multipliers := make([]int64, n)
	multipliers[n-1] = 1
	for j := n - 2; j >= 0; j-- {
		multipliers[j] = multipliers[j+1] * spans[j+1]
	}

	for i := 0; i < rows; i++ {
		var idx int64
		for j, in := range ins {
			idx += (in.I64[i] - mins[j]) * multipliers[j]
		}
		groupOf.AppendUSize(int(idx))
	}

	uniques := make([]*buffer.Buffer, n)
	for j, ref := range o.Uniques {
		uniques[j] = sp.Get(ref)
	}
	for g := int64(0); g < total; g++ {
		for j := range ins {
			v := mins[j] + (g/multipliers[j])%spans[j]
			uniques[j].AppendI64(v)
		}
	}
	return nil
}

// HashGroupOp computes a grouping key over one input column by SipHash,
// assigning each distinct value a group index in first-seen order, the
// fallback for columns the dense strategy cannot pack. GroupOf writes one
// USize row number per input row; Unique writes one representative row
// per distinct group, in group-index order, with the same encoding as
// In.
type HashGroupOp struct {
	baseOp
	In, GroupOf, Unique buffer.Ref
}

func NewHashGroupOp(in, groupOf, unique buffer.Ref) *HashGroupOp {
	return &HashGroupOp{
		baseOp: baseOp{name: fmt.Sprintf("HashGroup(%s)", in), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{groupOf, unique}, allocates: true},
		In:     in, GroupOf: groupOf, Unique: unique,
	}
}

func (o *HashGroupOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.GroupOf, partitionLen)
	sp.Init(o.Unique, 0)
}

// siphashKey is fixed so equal inputs hash identically within and across
// a process's queries; it is not a security boundary: the hash only
// needs to distribute keys, not resist adversarial collisions.
var siphashKey0, siphashKey1 uint64 = 0x5bd1e9955bd1e995, 0xc2b2ae3dc2b2ae3d

func hashRow(b *buffer.Buffer, i int) uint64 {
	if !b.IsValid(i) {
		return siphash.Hash(siphashKey0, siphashKey1, nil)
	}
	switch b.Encoding.NonNullable() {
	case types.I64:
		return siphash.Hash(siphashKey0, siphashKey1, i64Bytes(b.I64[i]))
	case types.F64:
		return siphash.Hash(siphashKey0, siphashKey1, i64Bytes(int64(b.F64[i])))
	case types.U8:
		return siphash.Hash(siphashKey0, siphashKey1, []byte{b.U8[i]})
	case types.Str:
		return siphash.Hash(siphashKey0, siphashKey1, []byte(b.StrAt(i)))
	default:
		return 0
	}
}

func i64Bytes(v int64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

// rowKey returns a comparable Go value equal iff two rows of b compare
// logically equal, used to resolve hash collisions to the correct
// existing group (the hash alone only narrows the bucket). Null rows
// all share one key, so a nullable grouping column collects its null
// rows into a single group.
func rowKey(b *buffer.Buffer, i int) interface{} {
	if !b.IsValid(i) {
		return nil
	}
	switch b.Encoding.NonNullable() {
	case types.I64:
		return b.I64[i]
	case types.F64:
		return b.F64[i]
	case types.U8:
		return b.U8[i]
	case types.Str:
		return b.StrAt(i)
	default:
		return nil
	}
}

func (o *HashGroupOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, groupOf, unique := sp.Get(o.In), sp.Get(o.GroupOf), sp.Get(o.Unique)
	type bucket struct {
		key   interface{}
		group int
	}
	buckets := make(map[uint64][]bucket, in.Len)
	nextGroup := 0
	for i := 0; i < in.Len; i++ {
		h := hashRow(in, i)
		k := rowKey(in, i)
		group := -1
		for _, b := range buckets[h] {
			if b.key == k {
				group = b.group
				break
			}
		}
		if group < 0 {
			group = nextGroup
			nextGroup++
			buckets[h] = append(buckets[h], bucket{key: k, group: group})
			appendRow(unique, in, i)
		}
		groupOf.AppendUSize(group)
	}
	return nil
}

// ZerosOp fills Out with one group index (always 0) per row of In. It
// is the grouping stage an aggregate with no GROUP BY uses: every row
// the filter selects belongs to the single implicit group.
type ZerosOp struct {
	baseOp
	In, Out buffer.Ref
}

func NewZerosOp(in, out buffer.Ref) *ZerosOp {
	return &ZerosOp{
		baseOp: baseOp{name: fmt.Sprintf("Zeros(%s)", in), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{out}, allocates: true},
		In:     in, Out: out,
	}
}

func (o *ZerosOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, partitionLen)
}

func (o *ZerosOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, out := sp.Get(o.In), sp.Get(o.Out)
	for i := 0; i < in.Len; i++ {
		out.AppendUSize(0)
	}
	return nil
}

// SingleGroupOp fills Out with exactly one placeholder element,
// representing the single implicit group of an aggregate with no
// GROUP BY. Its value is never read back (there is no grouping column
// to reconstruct), only its length of 1 matters to AggregateOp.
type SingleGroupOp struct {
	baseOp
	Out buffer.Ref
}

func NewSingleGroupOp(out buffer.Ref) *SingleGroupOp {
	return &SingleGroupOp{
		baseOp: baseOp{name: "SingleGroup", outputs: []buffer.Ref{out}, allocates: true},
		Out:    out,
	}
}

func (o *SingleGroupOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, 1)
}

func (o *SingleGroupOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	out := sp.Get(o.Out)
	switch out.Encoding.NonNullable() {
	case types.I64:
		out.AppendI64(0)
	case types.F64:
		out.AppendF64(0)
	case types.U8:
		out.AppendU8(0)
	case types.USize:
		out.AppendUSize(0)
	case types.Str:
		out.AppendStr("")
	}
	return nil
}
