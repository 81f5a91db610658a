package expr

// LimitClause bounds the rows returned by a query.
type LimitClause struct {
	Limit  uint64
	Offset uint64
}

// Unbounded is the sentinel limit used for a primary pass whose actual
// limiting happens in its post-pass (see Normalize).
const Unbounded = ^uint64(0)

// ColumnInfo pairs a compiled expression with its optional user-facing
// alias; an empty Alias means the expression has no display name of its
// own (it is referenced only by position or by a synthetic name
// introduced during normalization).
type ColumnInfo struct {
	Expr  Expr
	Alias string
}

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Expr Expr
	Desc bool
}

// AggregateInfo pairs an aggregator with the (non-aggregate) expression
// it aggregates.
type AggregateInfo struct {
	Aggregator Aggregator
	Col        ColumnInfo
}

// Query is the parsed, un-normalized representation of a single SELECT
// statement, as produced by the external SQL parser.
type Query struct {
	Select  []ColumnInfo
	Table   string
	Filter  Expr
	OrderBy []OrderKey
	Limit   LimitClause
}

// NormalFormQuery is a query ready for the planner. Its invariants
// (checked by Normalize's construction, not re-validated here) are:
//   - no expression in Projection, Filter, Aggregate or OrderBy
//     contains a nested Aggregate;
//   - len(Aggregate) > 0 implies len(OrderBy) == 0.
type NormalFormQuery struct {
	Projection []ColumnInfo
	Filter     Expr
	Aggregate  []AggregateInfo
	OrderBy    []OrderKey
	Limit      LimitClause
}

// IsSelectStar reports whether q is exactly `SELECT * FROM ...`.
func (q *Query) IsSelectStar() bool {
	if len(q.Select) != 1 {
		return false
	}
	c, ok := q.Select[0].Expr.(ColName)
	return ok && c.Name == "*"
}

// ReferencedColumns returns every column name referenced by q's select
// list, filter and order-by clauses (used by the planner to decide
// which columns of a partition must be read).
func (q *Query) ReferencedColumns() map[string]struct{} {
	out := map[string]struct{}{}
	merge := func(e Expr) {
		for k := range ColNames(e) {
			out[k] = struct{}{}
		}
	}
	for _, c := range q.Select {
		merge(c.Expr)
	}
	for _, o := range q.OrderBy {
		merge(o.Expr)
	}
	if q.Filter != nil {
		merge(q.Filter)
	}
	return out
}
