// Package buffer implements the typed, owned element storage the
// executor operates on (Buffer), the type-tagged handles operators use
// to refer to it (Ref), the per-query arena that owns it (Scratchpad),
// and the reversible physical<->logical transforms (Codec) attached to
// plan nodes that read encoded column sections.
package buffer

import (
	"fmt"

	"github.com/andreheringer/LocustDB/types"
)

// StringArena is the shared byte arena backing one or more Str/OptStr
// buffers for the lifetime of a single query. Buffers that reference it
// keep it alive via Scratchpad.Pin.
type StringArena struct {
	Bytes []byte
}

func (a *StringArena) append(s string) (start, end int) {
	start = len(a.Bytes)
	a.Bytes = append(a.Bytes, s...)
	end = len(a.Bytes)
	return
}

// StringData is the offsets-into-arena representation backing Str,
// OptStr and NullableStr buffers.
type StringData struct {
	Arena   *StringArena
	Offsets []int // length Len+1; element i covers Arena.Bytes[Offsets[i]:Offsets[i+1]]
}

func (s *StringData) At(i int) string {
	return string(s.Arena.Bytes[s.Offsets[i]:s.Offsets[i+1]])
}

func (s *StringData) Len() int { return len(s.Offsets) - 1 }

// Buffer is a typed, owned sequence of elements of a single encoding,
// plus its logical length. Nullable buffers additionally carry a
// parallel validity bitmap (Valid); string-like buffers carry
// offsets into a shared StringData arena.
type Buffer struct {
	Encoding types.EncodingType
	Len      int

	U8    []uint8
	U16   []uint16
	U32   []uint32
	U64   []uint64
	I64   []int64
	F64   []float64
	USize []int

	Strs *StringData

	// Valid holds one entry per logical row for nullable encodings;
	// Valid[i] == false means the row is null and the corresponding
	// primitive slot carries an unspecified placeholder value.
	Valid []bool

	ScalarI64 int64
	ScalarStr string
}

// New allocates an empty Buffer of the given encoding with capacity
// hint cap. Callers append logical rows with the Append* helpers below.
func New(enc types.EncodingType, capHint int) *Buffer {
	b := &Buffer{Encoding: enc}
	switch enc.NonNullable() {
	case types.U8:
		b.U8 = make([]uint8, 0, capHint)
	case types.U16:
		b.U16 = make([]uint16, 0, capHint)
	case types.U32:
		b.U32 = make([]uint32, 0, capHint)
	case types.U64:
		b.U64 = make([]uint64, 0, capHint)
	case types.I64:
		b.I64 = make([]int64, 0, capHint)
	case types.F64:
		b.F64 = make([]float64, 0, capHint)
	case types.USize:
		b.USize = make([]int, 0, capHint)
	case types.Str:
		b.Strs = &StringData{Arena: &StringArena{}, Offsets: make([]int, 1, capHint+1)}
	case types.Null:
		// no storage; Len tracks row count
	case types.ScalarI64, types.ScalarStr:
		// scalar buffers hold a single constant, appended once
	}
	if enc.Nullable() {
		b.Valid = make([]bool, 0, capHint)
	}
	return b
}

// AppendU8 appends one element to a non-nullable U8 buffer.
func (b *Buffer) AppendU8(v uint8) { b.U8 = append(b.U8, v); b.Len++ }

// AppendI64 appends one element to a non-nullable I64 buffer.
func (b *Buffer) AppendI64(v int64) { b.I64 = append(b.I64, v); b.Len++ }

// AppendF64 appends one element to a non-nullable F64 buffer.
func (b *Buffer) AppendF64(v float64) { b.F64 = append(b.F64, v); b.Len++ }

// AppendUSize appends one element to a USize buffer.
func (b *Buffer) AppendUSize(v int) { b.USize = append(b.USize, v); b.Len++ }

// AppendStr appends one string to a Str buffer, copying its bytes into
// the shared arena.
func (b *Buffer) AppendStr(s string) {
	if b.Strs == nil {
		b.Strs = &StringData{Arena: &StringArena{}, Offsets: []int{0}}
	}
	_, end := b.Strs.Arena.append(s)
	b.Strs.Offsets = append(b.Strs.Offsets, end)
	b.Len++
}

// AppendNullableI64 appends one element to a NullableI64 buffer; if
// !valid, the stored value is a placeholder and must not be read.
func (b *Buffer) AppendNullableI64(v int64, valid bool) {
	b.I64 = append(b.I64, v)
	b.Valid = append(b.Valid, valid)
	b.Len++
}

// AppendNullableF64 appends one element to a NullableF64 buffer.
func (b *Buffer) AppendNullableF64(v float64, valid bool) {
	b.F64 = append(b.F64, v)
	b.Valid = append(b.Valid, valid)
	b.Len++
}

// AppendNullableStr appends one string to a NullableStr buffer; a null
// row stores an empty string slot that must not be read.
func (b *Buffer) AppendNullableStr(s string, valid bool) {
	if b.Strs == nil {
		b.Strs = &StringData{Arena: &StringArena{}, Offsets: []int{0}}
	}
	_, end := b.Strs.Arena.append(s)
	b.Strs.Offsets = append(b.Strs.Offsets, end)
	b.Valid = append(b.Valid, valid)
	b.Len++
}

// IsValid reports whether row i of a nullable buffer is non-null. It
// always returns true for non-nullable encodings.
func (b *Buffer) IsValid(i int) bool {
	if b.Valid == nil {
		return true
	}
	return b.Valid[i]
}

// I64At returns the I64/NullableI64 element at row i, ignoring
// nullability (callers check IsValid themselves when it matters).
func (b *Buffer) I64At(i int) int64 { return b.I64[i] }

// F64At returns the F64/NullableF64 element at row i.
func (b *Buffer) F64At(i int) float64 { return b.F64[i] }

// StrAt returns the string at row i of a Str/OptStr/NullableStr buffer.
func (b *Buffer) StrAt(i int) string { return b.Strs.At(i) }

// Clone returns a deep copy of b (used when a buffer must outlive the
// scratchpad slot it was written into, e.g. before a seal).
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.U8 = append([]uint8(nil), b.U8...)
	c.U16 = append([]uint16(nil), b.U16...)
	c.U32 = append([]uint32(nil), b.U32...)
	c.U64 = append([]uint64(nil), b.U64...)
	c.I64 = append([]int64(nil), b.I64...)
	c.F64 = append([]float64(nil), b.F64...)
	c.USize = append([]int(nil), b.USize...)
	c.Valid = append([]bool(nil), b.Valid...)
	if b.Strs != nil {
		c.Strs = &StringData{
			Arena:   &StringArena{Bytes: append([]byte(nil), b.Strs.Arena.Bytes...)},
			Offsets: append([]int(nil), b.Strs.Offsets...),
		}
	}
	return &c
}

// HeapSize estimates the resident bytes owned by b, used by the store's
// memory accounting (Table.heapSizeOfChildren, Lru eviction bookkeeping).
// The fixed-width element portion is priced by the encoding's own
// Width(), so adding a new fixed-width encoding only means updating
// Width(), not this calculation too.
func (b *Buffer) HeapSize() int {
	n := b.Encoding.Width() * b.Len
	n += len(b.Valid)
	if b.Strs != nil {
		n += len(b.Strs.Arena.Bytes) + 8*len(b.Strs.Offsets)
	}
	return n
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{%s, len=%d}", b.Encoding, b.Len)
}

// AppendRowFrom copies row i of src onto the end of dst; dst and src
// must share a non-nullable/nullable-compatible encoding. Every
// row-copying operator and concatenation path delegates here so the
// per-encoding (and per-validity-bitmap) append logic lives in one
// place.
func AppendRowFrom(dst, src *Buffer, i int) {
	nullable := dst.Encoding.Nullable()
	switch dst.Encoding.NonNullable() {
	case types.U8:
		dst.U8 = append(dst.U8, src.U8[i])
	case types.U16:
		dst.U16 = append(dst.U16, src.U16[i])
	case types.U32:
		dst.U32 = append(dst.U32, src.U32[i])
	case types.U64:
		dst.U64 = append(dst.U64, src.U64[i])
	case types.I64, types.ScalarI64:
		dst.I64 = append(dst.I64, src.I64[i])
	case types.F64:
		dst.F64 = append(dst.F64, src.F64[i])
	case types.USize:
		dst.USize = append(dst.USize, src.USize[i])
	case types.Str, types.OptStr, types.ScalarStr:
		if dst.Strs == nil {
			dst.Strs = &StringData{Arena: &StringArena{}, Offsets: []int{0}}
		}
		_, end := dst.Strs.Arena.append(src.StrAt(i))
		dst.Strs.Offsets = append(dst.Strs.Offsets, end)
	}
	if nullable {
		dst.Valid = append(dst.Valid, src.IsValid(i))
	}
	dst.Len++
}

// AppendAll copies every row of src onto the end of dst. Shared by
// ColumnScanOp (package vm), the disk-persistence codec path (package
// diskstore) and cross-partition concatenation (package store).
func AppendAll(dst, src *Buffer) {
	for i := 0; i < src.Len; i++ {
		AppendRowFrom(dst, src, i)
	}
}

// AppendNulls appends n null (or zero-value, for non-nullable
// encodings) rows to dst, used when concatenating partitions that lack
// a given column.
func AppendNulls(dst *Buffer, n int) {
	nullable := dst.Encoding.Nullable()
	for i := 0; i < n; i++ {
		switch dst.Encoding.NonNullable() {
		case types.U8:
			dst.U8 = append(dst.U8, 0)
		case types.U16:
			dst.U16 = append(dst.U16, 0)
		case types.U32:
			dst.U32 = append(dst.U32, 0)
		case types.U64:
			dst.U64 = append(dst.U64, 0)
		case types.I64, types.ScalarI64:
			dst.I64 = append(dst.I64, 0)
		case types.F64:
			dst.F64 = append(dst.F64, 0)
		case types.USize:
			dst.USize = append(dst.USize, 0)
		case types.Str, types.OptStr, types.ScalarStr:
			if dst.Strs == nil {
				dst.Strs = &StringData{Arena: &StringArena{}, Offsets: []int{0}}
			}
			dst.Strs.Offsets = append(dst.Strs.Offsets, len(dst.Strs.Arena.Bytes))
		}
		if nullable {
			dst.Valid = append(dst.Valid, false)
		}
		dst.Len++
	}
}
