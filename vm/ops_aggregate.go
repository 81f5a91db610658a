package vm

import (
	"fmt"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/types"
)

// AggregateOp reduces In per group, as indicated by GroupOf (one group
// index per input row, the output of Dense/HashGroupOp), into one output
// row per group, in group-index order. SumI64 accumulates in int64 for
// precision but always writes its Out buffer as F64 (see aggOutEncoding
// in package planner, which declares SumI64's output encoding as F64 up
// front): once any partial sum would overflow int64, that group's
// running total continues accumulating in float64 from that point on,
// including values already summed (see DESIGN.md). Declaring the
// output F64 unconditionally,
// rather than switching Out's encoding tag only on the groups that
// actually overflow, keeps every row of one output buffer tagged with
// the encoding it is actually stored in.
type AggregateOp struct {
	baseOp
	In, GroupOf, Unique, Out buffer.Ref
	Agg                      expr.Aggregator
	NumGroups                int

	overflowed bool
}

// NewAggregateOp builds an aggregate reducing In per group. unique is the
// grouping operator's unique-values output; its length (known only once
// the grouping operator has executed) becomes NumGroups. The executor
// must run this operator's Init only after the grouping operator's
// Execute has populated unique (see Executor.Run's per-operator
// init-then-execute interleaving).
func NewAggregateOp(agg expr.Aggregator, in, groupOf, unique, out buffer.Ref) *AggregateOp {
	return &AggregateOp{
		baseOp: baseOp{name: fmt.Sprintf("Aggregate(%s, %s)", agg, in), inputs: []buffer.Ref{in, groupOf, unique}, outputs: []buffer.Ref{out}, streamIn: true, allocates: true},
		In:     in, GroupOf: groupOf, Unique: unique, Out: out, Agg: agg,
	}
}

func (o *AggregateOp) Init(partitionLen, batchSize int, sp *buffer.Scratchpad) {
	o.NumGroups = sp.Get(o.Unique).Len
	sp.Init(o.Out, o.NumGroups)
}

func (o *AggregateOp) Execute(streaming bool, sp *buffer.Scratchpad) error {
	in, groupOf, out := sp.Get(o.In), sp.Get(o.GroupOf), sp.Get(o.Out)

	// Nullable inputs mask their accumulator update: a null row never
	// contributes to (or counts toward) its group's aggregate.
	switch o.Agg {
	case expr.Count:
		counts := make([]int64, o.NumGroups)
		for i, g := range groupOf.USize {
			if !in.IsValid(i) {
				continue
			}
			counts[g]++
		}
		for _, c := range counts {
			out.AppendI64(c)
		}
	case expr.SumI64:
		sums := make([]int64, o.NumGroups)
		overflowed := make([]bool, o.NumGroups)
		fsums := make([]float64, o.NumGroups)
		for i, g := range groupOf.USize {
			if !in.IsValid(i) {
				continue
			}
			v := in.I64[i]
			if overflowed[g] {
				fsums[g] += float64(v)
				continue
			}
			next := sums[g] + v
			if (v > 0 && next < sums[g]) || (v < 0 && next > sums[g]) {
				overflowed[g] = true
				fsums[g] = float64(sums[g]) + float64(v)
				continue
			}
			sums[g] = next
		}
		for g := 0; g < o.NumGroups; g++ {
			if overflowed[g] {
				o.overflowed = true
				out.AppendF64(fsums[g])
			} else {
				out.AppendF64(float64(sums[g]))
			}
		}
	case expr.SumF64:
		sums := make([]float64, o.NumGroups)
		for i, g := range groupOf.USize {
			if !in.IsValid(i) {
				continue
			}
			sums[g] += in.F64[i]
		}
		for _, s := range sums {
			out.AppendF64(s)
		}
	case expr.MinI64, expr.MaxI64:
		vals := make([]int64, o.NumGroups)
		seen := make([]bool, o.NumGroups)
		for i, g := range groupOf.USize {
			if !in.IsValid(i) {
				continue
			}
			v := in.I64[i]
			if !seen[g] || (o.Agg == expr.MinI64 && v < vals[g]) || (o.Agg == expr.MaxI64 && v > vals[g]) {
				vals[g] = v
				seen[g] = true
			}
		}
		for _, v := range vals {
			out.AppendI64(v)
		}
	case expr.MinF64, expr.MaxF64:
		vals := make([]float64, o.NumGroups)
		seen := make([]bool, o.NumGroups)
		for i, g := range groupOf.USize {
			if !in.IsValid(i) {
				continue
			}
			v := in.F64[i]
			if !seen[g] || (o.Agg == expr.MinF64 && v < vals[g]) || (o.Agg == expr.MaxF64 && v > vals[g]) {
				vals[g] = v
				seen[g] = true
			}
		}
		for _, v := range vals {
			out.AppendF64(v)
		}
	default:
		return fmt.Errorf("aggregate: unsupported aggregator %s", o.Agg)
	}
	return nil
}

// OutEncoding reports the encoding Out actually carries. SumI64's Out is
// always F64 (see aggOutEncoding in package planner); Overflowed reports
// whether any group actually needed the float fallback, for callers
// (e.g. Explain) that want to describe what happened at runtime.
func (o *AggregateOp) OutEncoding() types.EncodingType {
	switch o.Agg {
	case expr.SumI64, expr.SumF64, expr.MinF64, expr.MaxF64:
		return types.F64
	default:
		return types.I64
	}
}

// Overflowed reports whether SumI64 promoted any group's running total to
// float64 because an int64 partial sum would have overflowed.
func (o *AggregateOp) Overflowed() bool { return o.overflowed }
