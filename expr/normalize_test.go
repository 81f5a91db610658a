package expr

import (
	"testing"

	"github.com/andreheringer/LocustDB/value"
)

func TestNormalizeSimpleAggregateNoOrderBy(t *testing.T) {
	// SELECT a, SUM(b) FROM t
	q := &Query{
		Table: "t",
		Select: []ColumnInfo{
			{Expr: ColName{Name: "a"}, Alias: "a"},
			{Expr: &Aggregate{Agg: SumI64, Arg: ColName{Name: "b"}}, Alias: "SUM(b)"},
		},
		Filter: Const{Val: value.Int(1)},
	}
	primary, post, err := Normalize(q)
	if err != nil {
		t.Fatal(err)
	}
	if post != nil {
		t.Fatalf("expected no post-pass, got %+v", post)
	}
	if len(primary.Aggregate) != 1 || primary.Aggregate[0].Aggregator != SumI64 {
		t.Fatalf("unexpected aggregate: %+v", primary.Aggregate)
	}
	if len(primary.Projection) != 1 {
		t.Fatalf("expected 1 non-aggregate projection column, got %d", len(primary.Projection))
	}
}

func TestNormalizeAggregateWithOrderByRequiresPostPass(t *testing.T) {
	// SELECT a, SUM(b) FROM t ORDER BY SUM(b) DESC LIMIT 2
	sumB := &Aggregate{Agg: SumI64, Arg: ColName{Name: "b"}}
	q := &Query{
		Table: "t",
		Select: []ColumnInfo{
			{Expr: ColName{Name: "a"}, Alias: "a"},
			{Expr: sumB, Alias: "SUM(b)"},
		},
		Filter:  Const{Val: value.Int(1)},
		OrderBy: []OrderKey{{Expr: sumB, Desc: true}},
		Limit:   LimitClause{Limit: 2},
	}
	primary, post, err := Normalize(q)
	if err != nil {
		t.Fatal(err)
	}
	if post == nil {
		t.Fatal("expected a post-pass")
	}
	if len(primary.OrderBy) != 0 {
		t.Fatalf("primary must have no order by, got %v", primary.OrderBy)
	}
	if primary.Limit.Limit != Unbounded {
		t.Fatalf("primary limit should be unbounded, got %d", primary.Limit.Limit)
	}
	if len(post.Aggregate) != 0 {
		t.Fatalf("post pass must have no aggregates of its own, got %v", post.Aggregate)
	}
	if c, ok := post.Filter.(Const); !ok || !c.Val.Equal(value.Int(1)) {
		t.Fatalf("post pass filter must be Const(1), got %v", post.Filter)
	}
	if post.Limit.Limit != 2 {
		t.Fatalf("post pass should carry original limit, got %d", post.Limit.Limit)
	}
}

func TestNormalizeRejectsNestedAggregates(t *testing.T) {
	q := &Query{
		Table: "t",
		Select: []ColumnInfo{
			{Expr: &Aggregate{Agg: SumI64, Arg: &Aggregate{Agg: Count, Arg: ColName{Name: "b"}}}},
		},
		Filter: Const{Val: value.Int(1)},
	}
	if _, _, err := Normalize(q); err == nil {
		t.Fatal("expected TypeError for nested aggregates")
	}
}

func TestNormalizeNonBareProjectionRequiresPostPass(t *testing.T) {
	// SELECT a + 1 FROM t
	q := &Query{
		Table: "t",
		Select: []ColumnInfo{
			{Expr: &Func2{Op: Add, LHS: ColName{Name: "a"}, RHS: Const{Val: value.Int(1)}}},
		},
		Filter: Const{Val: value.Int(1)},
	}
	_, post, err := Normalize(q)
	if err != nil {
		t.Fatal(err)
	}
	if post == nil {
		t.Fatal("expected a post-pass for non-bare-column projection")
	}
}
