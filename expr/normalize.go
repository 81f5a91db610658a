package expr

import (
	"fmt"

	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/value"
)

// Normalize splits q into a primary NormalFormQuery and an optional
// post-aggregation pass:
//
//  1. Walk each select expression, extracting aggregates into a list and
//     replacing each with a synthetic column name "_caN"; nested
//     aggregates are rejected with a TypeError.
//  2. Non-aggregate expressions are placed into the primary select list
//     under a synthetic column name "_csN"; the outer (post-pass)
//     projection refers to them by name.
//  3. A post-pass is required if either (a) aggregates coexist with an
//     ORDER BY, or (b) any final projection is not a bare column
//     reference. The post-pass's filter is Const(1), and it carries the
//     original order_by/limit. Otherwise the primary carries order_by
//     and limit directly, with limit set to Unbounded.
func Normalize(q *Query) (primary *NormalFormQuery, post *NormalFormQuery, err error) {
	var finalProjection []ColumnInfo
	var selectCols []ColumnInfo
	var aggregate []AggregateInfo
	selectColnames := 0
	aggColnames := 0
	nonBare := false

	for _, col := range q.Select {
		fullExpr, aggs, err := extractAggregators(col.Expr, &aggColnames, col.Alias)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := fullExpr.(ColName); !ok {
			nonBare = true
		}
		if len(aggs) == 0 {
			name := fmt.Sprintf("_cs%d", selectColnames)
			selectColnames++
			selectCols = append(selectCols, ColumnInfo{Expr: fullExpr, Alias: col.Alias})
			finalProjection = append(finalProjection, ColumnInfo{Expr: ColName{Name: name}, Alias: col.Alias})
		} else {
			aggregate = append(aggregate, aggs...)
			finalProjection = append(finalProjection, ColumnInfo{Expr: fullExpr, Alias: col.Alias})
		}
	}

	// requirePost mirrors finalProjection's bareness at the user-visible
	// value level: a non-aggregate item's own expression (before the
	// _csN placeholder substitution below) is what must be a bare
	// column reference, not the substituted placeholder itself.
	requirePost := (len(aggregate) > 0 && len(q.OrderBy) > 0) || nonBare

	if requirePost {
		var finalOrderBy []OrderKey
		for _, o := range q.OrderBy {
			fullExpr, aggs, err := extractAggregators(o.Expr, &aggColnames, "")
			if err != nil {
				return nil, nil, err
			}
			if len(aggs) == 0 {
				name := fmt.Sprintf("_cs%d", selectColnames)
				selectColnames++
				selectCols = append(selectCols, ColumnInfo{Expr: fullExpr})
				finalOrderBy = append(finalOrderBy, OrderKey{Expr: ColName{Name: name}, Desc: o.Desc})
			} else {
				aggregate = append(aggregate, aggs...)
				finalOrderBy = append(finalOrderBy, OrderKey{Expr: fullExpr, Desc: o.Desc})
			}
		}
		primary = &NormalFormQuery{
			Projection: selectCols,
			Filter:     q.Filter,
			Aggregate:  aggregate,
			OrderBy:    nil,
			Limit:      LimitClause{Limit: Unbounded, Offset: 0},
		}
		post = &NormalFormQuery{
			Projection: finalProjection,
			Filter:     Const{Val: value.Int(1)},
			Aggregate:  nil,
			OrderBy:    finalOrderBy,
			Limit:      q.Limit,
		}
		return primary, post, nil
	}

	primary = &NormalFormQuery{
		Projection: selectCols,
		Filter:     q.Filter,
		Aggregate:  aggregate,
		OrderBy:    q.OrderBy,
		Limit:      q.Limit,
	}
	return primary, nil, nil
}

// extractAggregators replaces every Aggregate node reachable from expr
// with a synthetic ColName("_caN") and returns the rewritten expression
// alongside the list of (aggregator, argument) pairs it extracted.
// Nested aggregates are a TypeError.
func extractAggregators(e Expr, colnames *int, alias string) (Expr, []AggregateInfo, error) {
	switch v := e.(type) {
	case *Aggregate:
		if err := ensureNoAggregates(v.Arg); err != nil {
			return nil, nil, err
		}
		name := fmt.Sprintf("_ca%d", *colnames)
		*colnames++
		return ColName{Name: name}, []AggregateInfo{{
			Aggregator: v.Agg,
			Col:        ColumnInfo{Expr: v.Arg, Alias: alias},
		}}, nil
	case *Func1:
		arg, aggs, err := extractAggregators(v.Arg, colnames, alias)
		if err != nil {
			return nil, nil, err
		}
		return &Func1{Op: v.Op, Arg: arg}, aggs, nil
	case *Func2:
		lhs, aggs1, err := extractAggregators(v.LHS, colnames, alias)
		if err != nil {
			return nil, nil, err
		}
		rhs, aggs2, err := extractAggregators(v.RHS, colnames, alias)
		if err != nil {
			return nil, nil, err
		}
		return &Func2{Op: v.Op, LHS: lhs, RHS: rhs}, append(aggs1, aggs2...), nil
	case Const, ColName:
		return e, nil, nil
	default:
		return nil, nil, errors.Fatalf("unreachable expr variant in extractAggregators: %T", e)
	}
}

func ensureNoAggregates(e Expr) error {
	switch v := e.(type) {
	case *Aggregate:
		return errors.TypeErrorf("Nested aggregates found.")
	case *Func1:
		return ensureNoAggregates(v.Arg)
	case *Func2:
		if err := ensureNoAggregates(v.LHS); err != nil {
			return err
		}
		return ensureNoAggregates(v.RHS)
	default:
		return nil
	}
}
