package planner

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/store"
	"github.com/andreheringer/LocustDB/value"
	"github.com/andreheringer/LocustDB/vm"
)

// FaultFunc faults a partition's non-resident column back into memory;
// see store.Partition.Column. A transient partition that is always
// fully resident (the post-pass's synthetic intermediate result, the
// live ingest buffer's view) passes nil.
type FaultFunc func(table string, partitionID uint64, meta store.ColumnMeta) (*store.Column, error)

// groupByItem is one GROUP BY column of an aggregate query: the
// synthetic "_csN" name the rest of the plan refers to it by, and the
// expression that computes it.
type groupByItem struct {
	Name string
	Expr expr.Expr
}

// aggregateItem is one aggregate output of an aggregate query: its
// synthetic name ("_caN") and the (aggregator, argument) pair
// extractAggregators pulled out of the original select list.
type aggregateItem struct {
	Name string
	Info expr.AggregateInfo
}

// aggregateQuery reshapes a NormalFormQuery whose Aggregate list is
// non-empty into the grouping/aggregate pairs compileAggregate expects.
// Normalize itself never stores "_csN"/"_caN" names on ColumnInfo or
// AggregateInfo; by construction (see Normalize) they are exactly the
// position of each entry within Projection/Aggregate, so they are
// synthesized here rather than carried through the AST.
type aggregateQuery struct {
	Filter     expr.Expr
	GroupBy    []groupByItem
	Aggregates []aggregateItem
}

func newAggregateQuery(nfq *expr.NormalFormQuery) *aggregateQuery {
	q := &aggregateQuery{Filter: nfq.Filter}
	for i, c := range nfq.Projection {
		q.GroupBy = append(q.GroupBy, groupByItem{Name: fmt.Sprintf("_cs%d", i), Expr: c.Expr})
	}
	for i, a := range nfq.Aggregate {
		q.Aggregates = append(q.Aggregates, aggregateItem{Name: fmt.Sprintf("_ca%d", i), Info: a})
	}
	return q
}

// namedExpr pairs an expression with the name its compiled result is
// keyed by in a pass's output map; projectionPass's generic unit of
// work.
type namedExpr struct {
	Name string
	Expr expr.Expr
}

// finalColumn is one column of a query's final output: its display
// name and a ColName expression addressing the pass (primary or post)
// that computed it.
type finalColumn struct {
	Name string
	Expr expr.Expr
}

// Result is a materialized query result: column display names, in the
// user's original SELECT order, and the rows under them. There is no
// separate pinned-buffer/arena bookkeeping - the garbage collector
// makes transferring ownership of scratchpad storage into the result
// unnecessary.
type Result struct {
	Colnames []string
	Rows     [][]value.RawVal
}

// RunQuery executes q against partition, faulting in non-resident
// columns via fault as needed, and returns the result rows in the
// user's original SELECT order with ORDER BY/LIMIT/OFFSET applied.
func RunQuery(q *expr.Query, partition *store.Partition, fault FaultFunc, batchSize int) (*Result, error) {
	if q.IsSelectStar() {
		q = expandSelectStar(q, partition)
	}

	primary, post, err := expr.Normalize(q)
	if err != nil {
		return nil, err
	}

	var primaryOutputs map[string]*buffer.Buffer
	if len(primary.Aggregate) > 0 {
		primaryOutputs, err = runAggregatePass(primary, partition, fault, batchSize)
	} else {
		cols := make([]namedExpr, len(primary.Projection))
		for i, c := range primary.Projection {
			cols[i] = namedExpr{Name: fmt.Sprintf("_cs%d", i), Expr: c.Expr}
		}
		primaryOutputs, err = projectionPass(partition, fault, primary.Filter, cols, primary.OrderBy, primary.Limit, partition.Len, batchSize)
	}
	if err != nil {
		return nil, err
	}

	cols := finalColumns(q, primary, post)

	if post == nil {
		return materialize(primaryOutputs, cols, primary.Limit)
	}

	synthetic := syntheticPartition(primaryOutputs)

	postCols := make([]namedExpr, len(cols))
	for i, c := range cols {
		postCols[i] = namedExpr{Name: fmt.Sprintf("_out%d", i), Expr: c.Expr}
	}
	postOutputs, err := projectionPass(synthetic, nil, post.Filter, postCols, post.OrderBy, post.Limit, synthetic.Len, batchSize)
	if err != nil {
		return nil, err
	}

	finalCols := make([]finalColumn, len(cols))
	for i, c := range cols {
		finalCols[i] = finalColumn{Name: c.Name, Expr: expr.ColName{Name: fmt.Sprintf("_out%d", i)}}
	}
	return materialize(postOutputs, finalCols, post.Limit)
}

// runAggregatePass compiles and runs an aggregate NormalFormQuery's
// grouping/aggregation chain, returning its "_csN"/"_caN" named
// outputs.
func runAggregatePass(primary *expr.NormalFormQuery, partition *store.Partition, fault FaultFunc, batchSize int) (map[string]*buffer.Buffer, error) {
	sp := buffer.NewScratchpad()
	b := newBuilder(partition, fault, sp)
	plan, err := b.compileAggregate(newAggregateQuery(primary))
	if err != nil {
		return nil, err
	}
	ex, err := vm.NewExecutor(b.ops)
	if err != nil {
		return nil, err
	}
	if err := ex.Run(partition.Len, batchSize); err != nil {
		return nil, err
	}
	out := make(map[string]*buffer.Buffer, len(plan.groupCols)+len(plan.aggCols))
	for name, c := range plan.groupCols {
		out[name] = ex.Scratchpad().Get(c.ref)
	}
	for name, c := range plan.aggCols {
		out[name] = ex.Scratchpad().Get(c.ref)
	}
	return out, nil
}

// projectionPass compiles and runs a filter + projection + ordering +
// limit pass: the shape every non-aggregate NormalFormQuery takes, and
// the shape a post-pass always takes (post.Aggregate is always nil).
func projectionPass(partition *store.Partition, fault FaultFunc, filterExpr expr.Expr, cols []namedExpr, orderBy []expr.OrderKey, limit expr.LimitClause, partitionLen, batchSize int) (map[string]*buffer.Buffer, error) {
	sp := buffer.NewScratchpad()
	b := newBuilder(partition, fault, sp)

	f, err := b.compileFilterExpr(filterExpr)
	if err != nil {
		return nil, err
	}
	fOrdered, err := b.applyOrdering(f, partitionLen, orderBy, limit)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]buffer.Ref, len(cols))
	for _, c := range cols {
		cr, err := b.compileExpr(c.Expr, fOrdered)
		if err != nil {
			return nil, err
		}
		refs[c.Name] = cr.ref
	}

	ex, err := vm.NewExecutor(b.ops)
	if err != nil {
		return nil, err
	}
	if err := ex.Run(partitionLen, batchSize); err != nil {
		return nil, err
	}

	out := make(map[string]*buffer.Buffer, len(refs))
	for name, ref := range refs {
		out[name] = ex.Scratchpad().Get(ref)
	}
	return out, nil
}

// syntheticPartition builds a fully resident, fault-free partition
// directly from a pass's materialized output buffers, the virtual
// intermediate table a post-pass runs its own filter/projection/
// ordering/limit step against.
func syntheticPartition(outputs map[string]*buffer.Buffer) *store.Partition {
	cols := make([]*store.Column, 0, len(outputs))
	for name, buf := range outputs {
		cols = append(cols, store.NewColumnFromBuffer(name, buf, buf.Len))
	}
	return store.NewPartition(0, "", cols, nil)
}

// finalColumns returns, for each of q's original select-list items in
// order, its display name and the ColName expression addressing
// whichever pass computed it: a post-pass's own projection item if one
// exists (post.Projection entries are already in final form, 1:1 with
// q.Select by construction - see Normalize), or, when there is no
// post-pass, a direct reference into the primary pass's "_csN"/"_caN"
// named outputs. Normalize does not retain this name/alias pairing
// once it folds a query into its primary/post split, so it is rebuilt
// here from q.Select by mirroring its own per-item bare-vs-aggregate
// decision (see containsAggregate), not by re-deriving any expression
// logic.
func finalColumns(q *expr.Query, primary *expr.NormalFormQuery, post *expr.NormalFormQuery) []finalColumn {
	cols := make([]finalColumn, len(q.Select))
	projIdx, aggIdx := 0, 0
	for i, item := range q.Select {
		var name, ref string
		if containsAggregate(item.Expr) {
			a := primary.Aggregate[aggIdx]
			ref = fmt.Sprintf("_ca%d", aggIdx)
			aggIdx++
			name = item.Alias
			if name == "" {
				name = strings.ToLower(a.Aggregator.String())
			}
		} else {
			ref = fmt.Sprintf("_cs%d", projIdx)
			projIdx++
			name = item.Alias
			if name == "" {
				if cn, ok := item.Expr.(expr.ColName); ok {
					name = cn.Name
				} else {
					name = fmt.Sprintf("col%d", i)
				}
			}
		}

		e := expr.Expr(expr.ColName{Name: ref})
		if post != nil {
			e = post.Projection[i].Expr
		}
		cols[i] = finalColumn{Name: name, Expr: e}
	}
	return cols
}

func containsAggregate(e expr.Expr) bool {
	switch v := e.(type) {
	case *expr.Aggregate:
		return true
	case *expr.Func1:
		return containsAggregate(v.Arg)
	case *expr.Func2:
		return containsAggregate(v.LHS) || containsAggregate(v.RHS)
	default:
		return false
	}
}

// expandSelectStar rewrites a `SELECT * FROM ...` query's select list
// into one bare column reference per column the partition currently
// has metadata for.
func expandSelectStar(q *expr.Query, partition *store.Partition) *expr.Query {
	names := partition.ColumnNames()
	slices.Sort(names)
	sel := make([]expr.ColumnInfo, len(names))
	for i, n := range names {
		sel[i] = expr.ColumnInfo{Expr: expr.ColName{Name: n}}
	}
	out := *q
	out.Select = sel
	return &out
}

// materialize reads cols out of outputs into row-major Result rows,
// applying limit (LIMIT/OFFSET) to the shared row range every column
// in cols spans.
func materialize(outputs map[string]*buffer.Buffer, cols []finalColumn, limit expr.LimitClause) (*Result, error) {
	bufs := make([]*buffer.Buffer, len(cols))
	names := make([]string, len(cols))
	n := 0
	for i, c := range cols {
		cn, ok := c.Expr.(expr.ColName)
		if !ok {
			return nil, errors.Fatalf("materialize: final column %q is not a plain reference", c.Name)
		}
		buf, ok := outputs[cn.Name]
		if !ok {
			return nil, errors.Fatalf("materialize: missing output %q for column %q", cn.Name, c.Name)
		}
		bufs[i] = buf
		names[i] = c.Name
		if i == 0 || buf.Len > n {
			n = buf.Len
		}
	}

	lo := int(limit.Offset)
	if lo > n {
		lo = n
	}
	hi := n
	if limit.Limit != expr.Unbounded {
		if end := lo + int(limit.Limit); end < hi {
			hi = end
		}
	}

	rows := make([][]value.RawVal, 0, hi-lo)
	for r := lo; r < hi; r++ {
		row := make([]value.RawVal, len(bufs))
		for c, buf := range bufs {
			row[c] = buf.RawValAt(r)
		}
		rows = append(rows, row)
	}
	return &Result{Colnames: names, Rows: rows}, nil
}
