// Package value defines RawVal, the untyped literal/row-cell value that
// crosses the boundary between ingest, the SQL parser and the
// expression tree, before a column or buffer ever commits to a
// concrete encoding.
package value

import "fmt"

// Kind tags the variant a RawVal holds.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindStr
)

// RawVal is an untyped value: a constant literal in a parsed query, or
// one cell of an ingested row. It has no notion of encoding; that is
// assigned once a column or scalar plan node is built from it.
type RawVal struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

func Null() RawVal             { return RawVal{Kind: KindNull} }
func Int(v int64) RawVal       { return RawVal{Kind: KindInt, Int: v} }
func Float(v float64) RawVal   { return RawVal{Kind: KindFloat, Float: v} }
func Str(v string) RawVal      { return RawVal{Kind: KindStr, Str: v} }

func (v RawVal) IsNull() bool { return v.Kind == KindNull }

func (v RawVal) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindStr:
		return fmt.Sprintf("%q", v.Str)
	default:
		return "<invalid RawVal>"
	}
}

// Equal reports whether two RawVals hold the same variant and value.
func (v RawVal) Equal(o RawVal) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindStr:
		return v.Str == o.Str
	}
	return false
}
