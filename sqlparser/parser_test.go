package sqlparser

import (
	"testing"

	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/expr"
)

func TestParseSimpleSelect(t *testing.T) {
	q, err := Parse("SELECT a, SUM(b) FROM t WHERE a < 3 GROUP BY a")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Table != "t" {
		t.Fatalf("table = %q, want t", q.Table)
	}
	if len(q.Select) != 2 {
		t.Fatalf("len(Select) = %d, want 2", len(q.Select))
	}
	if _, ok := q.Select[1].Expr.(*expr.Aggregate); !ok {
		t.Fatalf("Select[1] = %T, want *expr.Aggregate", q.Select[1].Expr)
	}
	if q.Filter == nil {
		t.Fatalf("expected a filter")
	}
	if q.Limit.Limit != DefaultLimit {
		t.Fatalf("Limit = %d, want default %d", q.Limit.Limit, DefaultLimit)
	}
}

func TestParseSelectStar(t *testing.T) {
	q, err := Parse("SELECT * FROM t LIMIT 0")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !q.IsSelectStar() {
		t.Fatalf("expected SELECT * to be recognized")
	}
	if q.Limit.Limit != 0 {
		t.Fatalf("Limit = %d, want 0", q.Limit.Limit)
	}
}

func TestParseOrderByLimit(t *testing.T) {
	q, err := Parse("SELECT a, SUM(b) FROM t ORDER BY SUM(b) DESC LIMIT 2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(q.OrderBy) != 1 || !q.OrderBy[0].Desc {
		t.Fatalf("OrderBy = %+v, want one descending key", q.OrderBy)
	}
	if q.Limit.Limit != 2 {
		t.Fatalf("Limit = %d, want 2", q.Limit.Limit)
	}
}

func TestParseCountWildcard(t *testing.T) {
	q, err := Parse("SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	agg, ok := q.Select[0].Expr.(*expr.Aggregate)
	if !ok || agg.Agg != expr.Count {
		t.Fatalf("Select[0] = %+v, want COUNT aggregate", q.Select[0].Expr)
	}
}

func TestParseJoinNotImplemented(t *testing.T) {
	_, err := Parse("SELECT a FROM t JOIN u ON t.a = u.a")
	qe, ok := err.(*errors.QueryError)
	if !ok || qe.Kind != errors.NotImplementedErr {
		t.Fatalf("err = %v, want NotImplemented", err)
	}
}

func TestParseHavingNotImplemented(t *testing.T) {
	_, err := Parse("SELECT a, SUM(b) FROM t GROUP BY a HAVING SUM(b) > 1")
	qe, ok := err.(*errors.QueryError)
	if !ok || qe.Kind != errors.NotImplementedErr {
		t.Fatalf("err = %v, want NotImplemented", err)
	}
}

func TestParseToYear(t *testing.T) {
	q, err := Parse("SELECT TO_YEAR(ts) FROM u")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f1, ok := q.Select[0].Expr.(*expr.Func1)
	if !ok || f1.Op != expr.ToYear {
		t.Fatalf("Select[0] = %+v, want TO_YEAR", q.Select[0].Expr)
	}
}
