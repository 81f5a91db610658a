package store

import (
	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/value"
)

// RowBuffer is the append-only, row-oriented ingest buffer a Table
// accumulates between seals. It stores values column-by-column even
// though rows arrive one at a time, so that Seal can materialize typed
// Columns without a row-to-column transpose pass.
type RowBuffer struct {
	Len     int
	Columns map[string][]value.RawVal
}

// NewRowBuffer returns an empty RowBuffer.
func NewRowBuffer() *RowBuffer {
	return &RowBuffer{Columns: make(map[string][]value.RawVal)}
}

// PushRow appends one row, given as column name -> value pairs. Columns
// absent from row are padded with RawVal nulls so every column slice
// stays the same length as Len.
func (b *RowBuffer) PushRow(row map[string]value.RawVal) {
	for name := range row {
		if _, ok := b.Columns[name]; !ok {
			b.Columns[name] = make([]value.RawVal, b.Len)
		}
	}
	for name, col := range b.Columns {
		v, ok := row[name]
		if !ok {
			v = value.Null()
		}
		b.Columns[name] = append(col, v)
	}
	b.Len++
}

// PushColumns appends a batch of already-columnar data (the
// "heterogeneous" bulk-ingest path), padding every column to the new
// Len the way PushRow does.
func (b *RowBuffer) PushColumns(cols map[string][]value.RawVal) {
	n := 0
	for _, vals := range cols {
		if len(vals) > n {
			n = len(vals)
		}
	}
	for name := range cols {
		if _, ok := b.Columns[name]; !ok {
			b.Columns[name] = make([]value.RawVal, b.Len)
		}
	}
	for name, col := range b.Columns {
		vals := cols[name]
		for i := 0; i < n; i++ {
			if i < len(vals) {
				col = append(col, vals[i])
			} else {
				col = append(col, value.Null())
			}
		}
		b.Columns[name] = col
	}
	b.Len += n
}

// Clone deep-copies the buffer (used to build the transient
// ingest-buffer partition returned by Table.Snapshot).
func (b *RowBuffer) Clone() *RowBuffer {
	c := &RowBuffer{Len: b.Len, Columns: make(map[string][]value.RawVal, len(b.Columns))}
	for name, col := range b.Columns {
		c.Columns[name] = append([]value.RawVal(nil), col...)
	}
	return c
}

// HeapSize estimates the bytes held by the buffer.
func (b *RowBuffer) HeapSize() int {
	n := 0
	for _, col := range b.Columns {
		for _, v := range col {
			switch v.Kind {
			case value.KindStr:
				n += len(v.Str)
			default:
				n += 8
			}
		}
	}
	return n
}

// ToColumns materializes every column of the buffer into a typed,
// sealed Column, choosing an encoding from the observed RawVal kinds:
// any Null among otherwise-int/float values promotes to the nullable
// variant; a column with only strings becomes Str; an entirely-null
// column becomes Null.
func (b *RowBuffer) ToColumns() map[string]*Column {
	out := make(map[string]*Column, len(b.Columns))
	for name, vals := range b.Columns {
		out[name] = columnFromRawVals(name, vals)
	}
	return out
}

func columnFromRawVals(name string, vals []value.RawVal) *Column {
	hasInt, hasFloat, hasStr, hasNull := false, false, false, false
	for _, v := range vals {
		switch v.Kind {
		case value.KindInt:
			hasInt = true
		case value.KindFloat:
			hasFloat = true
		case value.KindStr:
			hasStr = true
		case value.KindNull:
			hasNull = true
		}
	}

	distinct := map[string]struct{}{}
	for _, v := range vals {
		distinct[v.String()] = struct{}{}
	}

	switch {
	case hasStr:
		if hasNull || (hasInt || hasFloat) {
			// Mixed-kind or partially null string columns keep per-row
			// validity; non-string values are stored as null slots.
			buf := buffer.New(types.NullableStr, len(vals))
			for _, v := range vals {
				if v.Kind == value.KindStr {
					buf.AppendNullableStr(v.Str, true)
				} else {
					buf.AppendNullableStr("", false)
				}
			}
			return NewColumnFromBuffer(name, buf, len(distinct))
		}
		buf := buffer.New(types.Str, len(vals))
		for _, v := range vals {
			buf.AppendStr(v.Str)
		}
		return sealStrColumn(name, buf, len(distinct))
	case hasFloat || (hasInt && hasFloat):
		enc := types.F64
		if hasNull {
			enc, _ = enc.AsNullable()
		}
		buf := buffer.New(enc, len(vals))
		for _, v := range vals {
			f := asFloat(v)
			if hasNull {
				buf.AppendNullableF64(f, v.Kind != value.KindNull)
			} else {
				buf.AppendF64(f)
			}
		}
		return NewColumnFromBuffer(name, buf, len(distinct))
	case hasInt:
		enc := types.I64
		if hasNull {
			enc, _ = enc.AsNullable()
		}
		buf := buffer.New(enc, len(vals))
		for _, v := range vals {
			i := asInt(v)
			if hasNull {
				buf.AppendNullableI64(i, v.Kind != value.KindNull)
			} else {
				buf.AppendI64(i)
			}
		}
		if !hasNull {
			return sealI64Column(name, buf, len(distinct))
		}
		return NewColumnFromBuffer(name, buf, len(distinct))
	default:
		buf := buffer.New(types.Null, len(vals))
		buf.Len = len(vals)
		c := NewColumnFromBuffer(name, buf, 1)
		c.NullCount = len(vals)
		return c
	}
}

// sealI64Column picks a physical encoding for a fully materialized,
// non-nullable I64 column: values whose range fits in a byte once the
// minimum is subtracted bit-pack into a U8 section; everything else
// stays uncoded.
func sealI64Column(name string, buf *buffer.Buffer, cardinality int) *Column {
	if buf.Len > 0 {
		min, max := buf.I64[0], buf.I64[0]
		for _, v := range buf.I64 {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		if max-min < 256 {
			codec, phys := buffer.NewBitPackCodec(buf)
			return &Column{
				Name:        name,
				Sections:    []Section{{Data: phys, Codec: codec}},
				Cardinality: cardinality,
			}
		}
	}
	return NewColumnFromBuffer(name, buf, cardinality)
}

// sealStrColumn dictionary-encodes a non-nullable string column whose
// distinct-value count makes the code sequence worthwhile; unique-ish
// columns stay uncoded.
func sealStrColumn(name string, buf *buffer.Buffer, cardinality int) *Column {
	if buf.Len > 1 && cardinality <= buf.Len/2 {
		codec, phys := buffer.NewDictCodec(buf)
		return &Column{
			Name:        name,
			Sections:    []Section{{Data: phys, Codec: codec}},
			Cardinality: len(codec.Dictionary),
		}
	}
	return NewColumnFromBuffer(name, buf, cardinality)
}

func asFloat(v value.RawVal) float64 {
	switch v.Kind {
	case value.KindInt:
		return float64(v.Int)
	case value.KindFloat:
		return v.Float
	default:
		return 0
	}
}

func asInt(v value.RawVal) int64 {
	if v.Kind == value.KindInt {
		return v.Int
	}
	return 0
}
