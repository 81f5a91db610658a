package vm

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/types"
)

// SortOp produces, in Indices, a permutation of 0..In.Len-1 that orders
// In ascending (or descending, if Desc) and stable (ties broken by
// original row order).
type SortOp struct {
	baseOp
	In, Out buffer.Ref
	Desc    bool
}

func NewSortOp(in, out buffer.Ref, desc bool) *SortOp {
	return &SortOp{
		baseOp: baseOp{name: fmt.Sprintf("Sort(%s, desc=%v)", in, desc), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{out}, allocates: true},
		In:     in, Out: out, Desc: desc,
	}
}

func (o *SortOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, partitionLen)
}

func (o *SortOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, out := sp.Get(o.In), sp.Get(o.Out)
	perm := make([]int, in.Len)
	for i := range perm {
		perm[i] = i
	}
	less := lessFunc(in, o.Desc)
	sort.SliceStable(perm, func(a, b int) bool { return less(perm[a], perm[b]) })
	for _, i := range perm {
		out.AppendUSize(i)
	}
	return nil
}

func lessFunc(b *buffer.Buffer, desc bool) func(i, j int) bool {
	cmp := func(i, j int) int {
		switch b.Encoding.NonNullable() {
		case types.I64:
			return cmpI64(b.I64[i], b.I64[j])
		case types.F64:
			return cmpF64(b.F64[i], b.F64[j])
		case types.U8:
			return cmpI64(int64(b.U8[i]), int64(b.U8[j]))
		case types.USize:
			return cmpI64(int64(b.USize[i]), int64(b.USize[j]))
		case types.Str:
			return cmpStr(b.StrAt(i), b.StrAt(j))
		default:
			return 0
		}
	}
	return func(i, j int) bool {
		c := cmp(i, j)
		if desc {
			return c > 0
		}
		return c < 0
	}
}

func cmpI64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpF64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpStr(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// TopNOp is SortOp's bounded variant: it produces at most N row numbers,
// the N smallest (or largest, if Desc) elements of In in order, using a
// bounded heap of size N instead of materializing a full permutation.
// The planner uses this operator, in a primary pass or a post-pass, for
// a single ORDER BY key under a LIMIT whose offset plus limit is less
// than half the rows; every other ordering (e.g. an ORDER BY with no
// LIMIT) uses SortOp instead. Ties rank by original row order,
// so TopNOp's output is always identical to a stable full sort
// truncated to N rows.
type TopNOp struct {
	baseOp
	In, Out buffer.Ref
	N       int
	Desc    bool
}

func NewTopNOp(in, out buffer.Ref, n int, desc bool) *TopNOp {
	return &TopNOp{
		baseOp: baseOp{name: fmt.Sprintf("TopN(%s, n=%d, desc=%v)", in, n, desc), inputs: []buffer.Ref{in}, outputs: []buffer.Ref{out}, streamIn: true, allocates: true},
		In:     in, Out: out, N: n, Desc: desc,
	}
}

func (o *TopNOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	sp.Init(o.Out, o.N)
}

// boundedHeap ranks row numbers by ranks(i, j) with its worst-ranked
// kept element at the root, so one comparison decides whether a new
// row displaces it.
type boundedHeap struct {
	rows  []int
	ranks func(i, j int) bool // true if row i ranks strictly before row j
}

func (h *boundedHeap) Len() int            { return len(h.rows) }
func (h *boundedHeap) Less(a, b int) bool  { return h.ranks(h.rows[b], h.rows[a]) }
func (h *boundedHeap) Swap(a, b int)       { h.rows[a], h.rows[b] = h.rows[b], h.rows[a] }
func (h *boundedHeap) Push(x interface{})  { h.rows = append(h.rows, x.(int)) }
func (h *boundedHeap) Pop() interface{} {
	last := len(h.rows) - 1
	v := h.rows[last]
	h.rows = h.rows[:last]
	return v
}

func (o *TopNOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, out := sp.Get(o.In), sp.Get(o.Out)
	less := lessFunc(in, o.Desc)
	// Strict ranking with row order as the final tie-break, matching a
	// stable full sort.
	ranks := func(i, j int) bool {
		if less(i, j) {
			return true
		}
		if less(j, i) {
			return false
		}
		return i < j
	}

	h := &boundedHeap{ranks: ranks}
	for i := 0; i < in.Len; i++ {
		if h.Len() < o.N {
			heap.Push(h, i)
			continue
		}
		if o.N > 0 && ranks(i, h.rows[0]) {
			h.rows[0] = i
			heap.Fix(h, 0)
		}
	}

	ordered := make([]int, h.Len())
	for k := len(ordered) - 1; k >= 0; k-- {
		ordered[k] = heap.Pop(h).(int)
	}
	for _, i := range ordered {
		out.AppendUSize(i)
	}
	return nil
}
