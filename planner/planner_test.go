package planner

import (
	"strings"
	"testing"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/store"
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/value"
)

func i64Col(name string, vals []int64) *store.Column {
	b := buffer.New(types.I64, len(vals))
	for _, v := range vals {
		b.AppendI64(v)
	}
	return store.NewColumnFromBuffer(name, b, len(vals))
}

func strCol(name string, vals []string) *store.Column {
	b := buffer.New(types.Str, len(vals))
	for _, v := range vals {
		b.AppendStr(v)
	}
	return store.NewColumnFromBuffer(name, b, len(vals))
}

func nullableI64Col(name string, vals []int64, valid []bool) *store.Column {
	b := buffer.New(types.NullableI64, len(vals))
	for i, v := range vals {
		b.AppendNullableI64(v, valid[i])
	}
	return store.NewColumnFromBuffer(name, b, len(vals))
}

// testPartition builds t(a int, b int, s str) with rows
// (1,10,"x"), (2,20,"y"), (1,30,"x"), (3,40,"z").
func testPartition() *store.Partition {
	return store.NewPartition(0, "t", []*store.Column{
		i64Col("a", []int64{1, 2, 1, 3}),
		i64Col("b", []int64{10, 20, 30, 40}),
		strCol("s", []string{"x", "y", "x", "z"}),
	}, nil)
}

func mustParse(t *testing.T, sel []expr.ColumnInfo, filter expr.Expr, orderBy []expr.OrderKey, limit expr.LimitClause) *expr.Query {
	t.Helper()
	return &expr.Query{Select: sel, Table: "t", Filter: filter, OrderBy: orderBy, Limit: limit}
}

func col(name string) expr.ColumnInfo {
	return expr.ColumnInfo{Expr: expr.ColName{Name: name}}
}

func noLimit() expr.LimitClause { return expr.LimitClause{Limit: expr.Unbounded} }

func TestRunQueryFilterAndProjection(t *testing.T) {
	q := mustParse(t,
		[]expr.ColumnInfo{col("a"), col("b")},
		&expr.Func2{Op: expr.Gt, LHS: expr.ColName{Name: "b"}, RHS: expr.Const{Val: value.Int(15)}},
		nil, noLimit())

	res, err := RunQuery(q, testPartition(), nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]int64{{2, 20}, {1, 30}, {3, 40}}
	if len(res.Rows) != len(want) {
		t.Fatalf("rows = %+v, want %d rows", res.Rows, len(want))
	}
	for i, w := range want {
		if res.Rows[i][0].Int != w[0] || res.Rows[i][1].Int != w[1] {
			t.Fatalf("row %d = %+v, want %v", i, res.Rows[i], w)
		}
	}
}

func TestRunQueryGroupBySum(t *testing.T) {
	// SELECT a, SUM(b) FROM t
	q := mustParse(t,
		[]expr.ColumnInfo{col("a"), {Expr: &expr.Aggregate{Agg: expr.SumI64, Arg: expr.ColName{Name: "b"}}}},
		nil, nil, noLimit())

	res, err := RunQuery(q, testPartition(), nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	want := map[int64]float64{1: 40, 2: 20, 3: 40}
	if len(res.Rows) != len(want) {
		t.Fatalf("rows = %+v, want %d groups", res.Rows, len(want))
	}
	for _, row := range res.Rows {
		if sum, ok := want[row[0].Int]; !ok || row[1].Float != sum {
			t.Fatalf("group %d = %v, want %v", row[0].Int, row[1].Float, sum)
		}
	}
}

func TestRunQueryGroupByStringSortsGroups(t *testing.T) {
	// SELECT s, COUNT(1) FROM t WHERE a < 3: hash-grouped output is
	// sorted ascending by the reconstructed group column.
	q := mustParse(t,
		[]expr.ColumnInfo{col("s"), {Expr: &expr.Aggregate{Agg: expr.Count, Arg: expr.Const{Val: value.Int(1)}}}},
		&expr.Func2{Op: expr.Lt, LHS: expr.ColName{Name: "a"}, RHS: expr.Const{Val: value.Int(3)}},
		nil, noLimit())

	res, err := RunQuery(q, testPartition(), nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %+v, want 2 groups", res.Rows)
	}
	if res.Rows[0][0].Str != "x" || res.Rows[0][1].Int != 2 {
		t.Fatalf("first group = %+v, want (x, 2)", res.Rows[0])
	}
	if res.Rows[1][0].Str != "y" || res.Rows[1][1].Int != 1 {
		t.Fatalf("second group = %+v, want (y, 1)", res.Rows[1])
	}
}

func TestRunQueryAggregateOrderByLimit(t *testing.T) {
	// SELECT a, SUM(b) FROM t ORDER BY SUM(b) DESC LIMIT 2
	sumB := func() expr.Expr {
		return &expr.Aggregate{Agg: expr.SumI64, Arg: expr.ColName{Name: "b"}}
	}
	q := mustParse(t,
		[]expr.ColumnInfo{col("a"), {Expr: sumB()}},
		nil,
		[]expr.OrderKey{{Expr: sumB(), Desc: true}},
		expr.LimitClause{Limit: 2})

	res, err := RunQuery(q, testPartition(), nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]interface{}{{int64(1), 40.0}, {int64(3), 40.0}}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %+v, want 2", res.Rows)
	}
	for i, w := range want {
		if res.Rows[i][0].Int != w[0].(int64) || res.Rows[i][1].Float != w[1].(float64) {
			t.Fatalf("row %d = %+v, want %v", i, res.Rows[i], w)
		}
	}
}

func TestRunQuerySelectStarLimitZero(t *testing.T) {
	q := mustParse(t,
		[]expr.ColumnInfo{{Expr: expr.ColName{Name: "*"}}},
		nil, nil, expr.LimitClause{Limit: 0})

	res, err := RunQuery(q, testPartition(), nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("rows = %+v, want none", res.Rows)
	}
	wantCols := []string{"a", "b", "s"}
	if len(res.Colnames) != len(wantCols) {
		t.Fatalf("colnames = %v, want %v", res.Colnames, wantCols)
	}
	for i, w := range wantCols {
		if res.Colnames[i] != w {
			t.Fatalf("colnames = %v, want %v", res.Colnames, wantCols)
		}
	}
}

func TestRunQueryTopNMatchesFullSort(t *testing.T) {
	// A partition long enough that ORDER BY b LIMIT 2 takes the top-N
	// path (2*limit < len), with ties so the tie-break matters; the
	// result must equal a full sort truncated to the limit.
	part := store.NewPartition(0, "t", []*store.Column{
		i64Col("a", []int64{0, 1, 2, 3, 4, 5, 6, 7}),
		i64Col("b", []int64{5, 1, 5, 3, 1, 2, 4, 1}),
	}, nil)

	topN := mustParse(t,
		[]expr.ColumnInfo{col("a"), col("b")},
		nil,
		[]expr.OrderKey{{Expr: expr.ColName{Name: "b"}}},
		expr.LimitClause{Limit: 2})
	fullSort := mustParse(t,
		[]expr.ColumnInfo{col("a"), col("b")},
		nil,
		[]expr.OrderKey{{Expr: expr.ColName{Name: "b"}}},
		expr.LimitClause{Limit: 7}) // 2*7 >= 8 forces the full-sort path

	resTop, err := RunQuery(topN, part, nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	resFull, err := RunQuery(fullSort, part, nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(resTop.Rows) != 2 {
		t.Fatalf("top-N rows = %+v, want 2", resTop.Rows)
	}
	for i, row := range resTop.Rows {
		if row[0].Int != resFull.Rows[i][0].Int || row[1].Int != resFull.Rows[i][1].Int {
			t.Fatalf("row %d: top-N %+v != full sort %+v", i, row, resFull.Rows[i])
		}
	}
}

func TestRunQueryMismatchedOperandTypes(t *testing.T) {
	// a + s dispatches on (I64, Str): the same-tag check fires.
	q := mustParse(t,
		[]expr.ColumnInfo{{Expr: &expr.Func2{Op: expr.Add, LHS: expr.ColName{Name: "a"}, RHS: expr.ColName{Name: "s"}}}},
		nil, nil, noLimit())

	_, err := RunQuery(q, testPartition(), nil, 1024)
	if err == nil {
		t.Fatal("expected a type error")
	}
	if kind, ok := errors.KindOf(err); !ok || kind != errors.TypeErr {
		t.Fatalf("err = %v, want TypeError", err)
	}
	if !strings.Contains(err.Error(), "Expected identical types for `lhs` and `rhs`") {
		t.Fatalf("err = %v, want identical-types message", err)
	}
}

func TestRunQueryArithmeticNotSupportedForStrings(t *testing.T) {
	// s + s passes the same-tag check but no production admits Str.
	q := mustParse(t,
		[]expr.ColumnInfo{{Expr: &expr.Func2{Op: expr.Add, LHS: expr.ColName{Name: "s"}, RHS: expr.ColName{Name: "s"}}}},
		nil, nil, noLimit())

	_, err := RunQuery(q, testPartition(), nil, 1024)
	if err == nil {
		t.Fatal("expected a type error")
	}
	if !strings.Contains(err.Error(), "+ not supported for type Str") {
		t.Fatalf("err = %v, want fallback message", err)
	}
}

func TestRunQueryStringEquality(t *testing.T) {
	q := mustParse(t,
		[]expr.ColumnInfo{col("a")},
		&expr.Func2{Op: expr.Eq, LHS: expr.ColName{Name: "s"}, RHS: expr.Const{Val: value.Str("x")}},
		nil, noLimit())

	res, err := RunQuery(q, testPartition(), nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || res.Rows[0][0].Int != 1 || res.Rows[1][0].Int != 1 {
		t.Fatalf("rows = %+v, want two rows with a=1", res.Rows)
	}
}

func TestRunQueryNullableAggregation(t *testing.T) {
	// Null rows do not contribute to SUM and group under one null key.
	part := store.NewPartition(0, "t", []*store.Column{
		nullableI64Col("g", []int64{1, 1, 0, 2}, []bool{true, true, false, true}),
		i64Col("v", []int64{10, 20, 100, 5}),
	}, nil)
	q := mustParse(t,
		[]expr.ColumnInfo{col("g"), {Expr: &expr.Aggregate{Agg: expr.SumI64, Arg: expr.ColName{Name: "v"}}}},
		nil, nil, noLimit())

	res, err := RunQuery(q, part, nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("rows = %+v, want 3 groups (1, 2, null)", res.Rows)
	}
	sums := map[string]float64{}
	for _, row := range res.Rows {
		sums[row[0].String()] = row[1].Float
	}
	if sums["1"] != 30 || sums["2"] != 5 || sums["NULL"] != 100 {
		t.Fatalf("sums = %v, want 1:30 2:5 NULL:100", sums)
	}
}

func TestRunQueryFalsyConstantFilter(t *testing.T) {
	q := mustParse(t,
		[]expr.ColumnInfo{col("a")},
		expr.Const{Val: value.Int(0)},
		nil, noLimit())

	res, err := RunQuery(q, testPartition(), nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("rows = %+v, want none", res.Rows)
	}
}

func TestExplainRendersOperatorChain(t *testing.T) {
	q := mustParse(t,
		[]expr.ColumnInfo{col("a")},
		&expr.Func2{Op: expr.Gt, LHS: expr.ColName{Name: "a"}, RHS: expr.Const{Val: value.Int(1)}},
		nil, noLimit())

	out, err := Explain(q, testPartition(), nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ColumnScan(a)") {
		t.Fatalf("explain output missing scan: %q", out)
	}
}

func TestRunQueryDenseGroupCountSelectorCompaction(t *testing.T) {
	// a spans 1..3 with no rows for 2: the dense key has a gap, and the
	// COUNT output doubles as the selector that drops it.
	part := store.NewPartition(0, "t", []*store.Column{
		i64Col("a", []int64{1, 3, 1}),
		i64Col("b", []int64{10, 20, 30}),
	}, nil)
	q := mustParse(t,
		[]expr.ColumnInfo{
			col("a"),
			{Expr: &expr.Aggregate{Agg: expr.Count, Arg: expr.Const{Val: value.Int(1)}}},
			{Expr: &expr.Aggregate{Agg: expr.SumI64, Arg: expr.ColName{Name: "b"}}},
		},
		nil, nil, noLimit())

	res, err := RunQuery(q, part, nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %+v, want 2 occupied groups", res.Rows)
	}
	if res.Rows[0][0].Int != 1 || res.Rows[0][1].Int != 2 || res.Rows[0][2].Float != 40 {
		t.Fatalf("row 0 = %+v, want (1, 2, 40)", res.Rows[0])
	}
	if res.Rows[1][0].Int != 3 || res.Rows[1][1].Int != 1 || res.Rows[1][2].Float != 20 {
		t.Fatalf("row 1 = %+v, want (3, 1, 20)", res.Rows[1])
	}
}

func TestRunQueryDenseGroupExistsCompaction(t *testing.T) {
	// No COUNT aggregate: the same gapped key compacts through the
	// dedicated exists pass instead.
	part := store.NewPartition(0, "t", []*store.Column{
		i64Col("a", []int64{1, 3, 1}),
		i64Col("b", []int64{10, 20, 30}),
	}, nil)
	q := mustParse(t,
		[]expr.ColumnInfo{col("a"), {Expr: &expr.Aggregate{Agg: expr.SumI64, Arg: expr.ColName{Name: "b"}}}},
		nil, nil, noLimit())

	res, err := RunQuery(q, part, nil, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %+v, want 2 occupied groups", res.Rows)
	}
	if res.Rows[0][0].Int != 1 || res.Rows[0][1].Float != 40 {
		t.Fatalf("row 0 = %+v, want (1, 40)", res.Rows[0])
	}
	if res.Rows[1][0].Int != 3 || res.Rows[1][1].Float != 20 {
		t.Fatalf("row 1 = %+v, want (3, 20)", res.Rows[1])
	}
}
