package buffer

import "github.com/andreheringer/LocustDB/types"

// Codec is a reversible transformation attached to a plan node
// describing how a physical (on-disk/in-memory-compact) buffer decodes
// to logical values. Operators may run directly on encoded values when
// their semantics permit (e.g. equality filters against a dictionary
// code); otherwise the planner inserts a Decode operator.
type Codec interface {
	// PhysicalType is the encoding of buffers produced by Encode and
	// consumed by Decode.
	PhysicalType() types.EncodingType
	// LogicalType is the encoding of buffers consumed by Encode and
	// produced by Decode.
	LogicalType() types.EncodingType
	Encode(logical *Buffer) *Buffer
	Decode(physical *Buffer) *Buffer
}

// DictCodec dictionary-encodes a Str column as U32 codes into a shared
// dictionary of distinct strings, in first-seen order.
type DictCodec struct {
	Dictionary []string
}

// NewDictCodec builds a dictionary from the distinct values observed in
// logical, preserving first-seen order, and returns the codec alongside
// the encoded (physical) buffer.
func NewDictCodec(logical *Buffer) (*DictCodec, *Buffer) {
	index := make(map[string]uint32)
	c := &DictCodec{}
	phys := New(types.U32, logical.Len)
	for i := 0; i < logical.Len; i++ {
		s := logical.StrAt(i)
		code, ok := index[s]
		if !ok {
			code = uint32(len(c.Dictionary))
			c.Dictionary = append(c.Dictionary, s)
			index[s] = code
		}
		phys.U32 = append(phys.U32, code)
	}
	phys.Len = logical.Len
	return c, phys
}

func (c *DictCodec) PhysicalType() types.EncodingType { return types.U32 }
func (c *DictCodec) LogicalType() types.EncodingType  { return types.Str }

func (c *DictCodec) Encode(logical *Buffer) *Buffer {
	_, phys := NewDictCodec(logical)
	return phys
}

func (c *DictCodec) Decode(physical *Buffer) *Buffer {
	out := New(types.Str, physical.Len)
	for i := 0; i < physical.Len; i++ {
		out.AppendStr(c.Dictionary[physical.U32[i]])
	}
	return out
}

// DeltaCodec delta-encodes an I64 column: each physical element is the
// difference from the previous logical element (the first element is
// stored as-is).
type DeltaCodec struct{}

func (DeltaCodec) PhysicalType() types.EncodingType { return types.I64 }
func (DeltaCodec) LogicalType() types.EncodingType  { return types.I64 }

func (DeltaCodec) Encode(logical *Buffer) *Buffer {
	out := New(types.I64, logical.Len)
	var prev int64
	for i := 0; i < logical.Len; i++ {
		v := logical.I64At(i)
		if i == 0 {
			out.AppendI64(v)
		} else {
			out.AppendI64(v - prev)
		}
		prev = v
	}
	return out
}

func (DeltaCodec) Decode(physical *Buffer) *Buffer {
	out := New(types.I64, physical.Len)
	var running int64
	for i := 0; i < physical.Len; i++ {
		if i == 0 {
			running = physical.I64At(0)
		} else {
			running += physical.I64At(i)
		}
		out.AppendI64(running)
	}
	return out
}

// BitPackCodec stores an I64 column offset by Base in a narrower U8
// physical representation, suitable for columns whose value range
// fits in a byte once the minimum is subtracted.
type BitPackCodec struct {
	Base int64
}

func NewBitPackCodec(logical *Buffer) (*BitPackCodec, *Buffer) {
	if logical.Len == 0 {
		return &BitPackCodec{}, New(types.U8, 0)
	}
	min := logical.I64At(0)
	for i := 1; i < logical.Len; i++ {
		if v := logical.I64At(i); v < min {
			min = v
		}
	}
	c := &BitPackCodec{Base: min}
	phys := New(types.U8, logical.Len)
	for i := 0; i < logical.Len; i++ {
		phys.AppendU8(uint8(logical.I64At(i) - min))
	}
	return c, phys
}

func (c *BitPackCodec) PhysicalType() types.EncodingType { return types.U8 }
func (c *BitPackCodec) LogicalType() types.EncodingType  { return types.I64 }

func (c *BitPackCodec) Encode(logical *Buffer) *Buffer {
	_, phys := NewBitPackCodec(logical)
	return phys
}

func (c *BitPackCodec) Decode(physical *Buffer) *Buffer {
	out := New(types.I64, physical.Len)
	for i := 0; i < physical.Len; i++ {
		out.AppendI64(c.Base + int64(physical.U8[i]))
	}
	return out
}
