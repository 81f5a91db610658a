// Package expr implements the expression tree the SQL parser produces
// (Const, ColName, Func1, Func2, Aggregate), the Query/NormalFormQuery
// types, and query normalization (splitting a user query into a main
// pass and an optional post-aggregation pass). See Rewrite for the
// traversal API.
package expr

import (
	"fmt"

	"github.com/andreheringer/LocustDB/value"
)

// UnaryOp enumerates the Func1 operators recognized by the planner.
type UnaryOp int

const (
	Negate UnaryOp = iota
	ToYear
)

func (op UnaryOp) String() string {
	switch op {
	case Negate:
		return "-"
	case ToYear:
		return "TO_YEAR"
	default:
		return fmt.Sprintf("UnaryOp(%d)", int(op))
	}
}

// BinaryOp enumerates the Func2 operators recognized by the planner.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	And
	Or
	Eq
	Neq
	Lt
	Gt
	Lte
	Gte
)

func (op BinaryOp) String() string {
	switch op {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case And:
		return "AND"
	case Or:
		return "OR"
	case Eq:
		return "="
	case Neq:
		return "<>"
	case Lt:
		return "<"
	case Gt:
		return ">"
	case Lte:
		return "<="
	case Gte:
		return ">="
	default:
		return fmt.Sprintf("BinaryOp(%d)", int(op))
	}
}

// IsComparison reports whether op is one of = <> < > <= >=; comparison
// results are always boolean (U8/NullableU8), never numeric.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case Eq, Neq, Lt, Gt, Lte, Gte:
		return true
	default:
		return false
	}
}

// Aggregator enumerates the supported aggregate functions.
type Aggregator int

const (
	Count Aggregator = iota
	SumI64
	SumF64
	MinI64
	MinF64
	MaxI64
	MaxF64
)

func (a Aggregator) String() string {
	switch a {
	case Count:
		return "COUNT"
	case SumI64:
		return "SUM_I64"
	case SumF64:
		return "SUM_F64"
	case MinI64:
		return "MIN_I64"
	case MinF64:
		return "MIN_F64"
	case MaxI64:
		return "MAX_I64"
	case MaxF64:
		return "MAX_F64"
	default:
		return fmt.Sprintf("Aggregator(%d)", int(a))
	}
}

// IsIntVariant reports whether a accumulates in integer space.
func (a Aggregator) IsIntVariant() bool {
	switch a {
	case Count, SumI64, MinI64, MaxI64:
		return true
	default:
		return false
	}
}

// FloatVariant returns the float counterpart of an int aggregator
// (e.g. SumI64 -> SumF64), used when SumI64 is promoted after overflow
// or a float input is observed. Count has no float counterpart and is
// returned unchanged.
func (a Aggregator) FloatVariant() Aggregator {
	switch a {
	case SumI64:
		return SumF64
	case MinI64:
		return MinF64
	case MaxI64:
		return MaxF64
	default:
		return a
	}
}

// Expr is a node in the expression tree produced by the (external) SQL
// parser: a constant, a column reference, a unary/binary function
// application, or an aggregate wrapping a non-aggregate sub-expression.
type Expr interface {
	fmt.Stringer
	isExpr()
	walk(r Rewriter) Expr
}

// Const is a constant literal.
type Const struct{ Val value.RawVal }

// ColName is a reference to a column (or a synthetic column introduced
// by normalization, e.g. "_ca0", "_cs0").
type ColName struct{ Name string }

// Func1 applies a unary operator to Arg.
type Func1 struct {
	Op  UnaryOp
	Arg Expr
}

// Func2 applies a binary operator to LHS and RHS.
type Func2 struct {
	Op       BinaryOp
	LHS, RHS Expr
}

// Aggregate wraps a non-aggregate expression with an aggregator; nested
// aggregates (Arg itself containing an Aggregate) are rejected by
// normalization with a TypeError.
type Aggregate struct {
	Agg Aggregator
	Arg Expr
}

func (Const) isExpr()     {}
func (ColName) isExpr()   {}
func (*Func1) isExpr()    {}
func (*Func2) isExpr()    {}
func (*Aggregate) isExpr() {}

func (e Const) String() string   { return e.Val.String() }
func (e ColName) String() string { return e.Name }
func (e *Func1) String() string  { return fmt.Sprintf("%s(%s)", e.Op, e.Arg) }
func (e *Func2) String() string  { return fmt.Sprintf("(%s %s %s)", e.LHS, e.Op, e.RHS) }
func (e *Aggregate) String() string {
	return fmt.Sprintf("%s(%s)", e.Agg, e.Arg)
}

// Rewriter rewrites nodes in depth-first order: Walk selects the
// rewriter used for a node's children, and Rewrite is applied to the
// node itself after its children.
type Rewriter interface {
	Rewrite(Expr) Expr
	Walk(Expr) Rewriter
}

func (e Const) walk(Rewriter) Expr   { return e }
func (e ColName) walk(Rewriter) Expr { return e }

func (e *Func1) walk(r Rewriter) Expr {
	c := r.Walk(e)
	if c == nil {
		return e
	}
	arg := Rewrite(c, e.Arg)
	return &Func1{Op: e.Op, Arg: arg}
}

func (e *Func2) walk(r Rewriter) Expr {
	c := r.Walk(e)
	if c == nil {
		return e
	}
	lhs := Rewrite(c, e.LHS)
	rhs := Rewrite(c, e.RHS)
	return &Func2{Op: e.Op, LHS: lhs, RHS: rhs}
}

func (e *Aggregate) walk(r Rewriter) Expr {
	c := r.Walk(e)
	if c == nil {
		return e
	}
	arg := Rewrite(c, e.Arg)
	return &Aggregate{Agg: e.Agg, Arg: arg}
}

// Rewrite recursively applies r to n in depth-first order: children
// first, then n itself.
func Rewrite(r Rewriter, n Expr) Expr {
	if n == nil {
		return nil
	}
	n = n.walk(r)
	return r.Rewrite(n)
}

// ColNames returns the set of column names referenced anywhere in e.
func ColNames(e Expr) map[string]struct{} {
	out := map[string]struct{}{}
	var visit func(Expr)
	visit = func(n Expr) {
		switch v := n.(type) {
		case ColName:
			out[v.Name] = struct{}{}
		case *Func1:
			visit(v.Arg)
		case *Func2:
			visit(v.LHS)
			visit(v.RHS)
		case *Aggregate:
			visit(v.Arg)
		}
	}
	visit(e)
	return out
}
