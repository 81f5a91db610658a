// Package store implements the columnar partition/table data model:
// immutable, sealed Columns made of typed data Sections; Partitions
// that group columns sharing one row count; Tables that hold an
// append-only ingest buffer plus a map of sealed partitions; and an Lru
// used to track and evict resident column storage under memory
// pressure. See Table for the seal/snapshot contract.
package store

import (
	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/types"
)

// Section is one physical data section of a Column: a buffer together
// with the (possibly nil) codec describing how it decodes to logical
// values.
type Section struct {
	Data  *buffer.Buffer
	Codec buffer.Codec
}

// LogicalType returns the encoding callers see after decoding, i.e.
// Codec.LogicalType() if a codec is present, or Data.Encoding otherwise.
func (s Section) LogicalType() types.EncodingType {
	if s.Codec != nil {
		return s.Codec.LogicalType()
	}
	return s.Data.Encoding
}

// Column is an immutable (once sealed), named sequence of data
// sections, plus summary statistics used by the planner's cardinality
// estimation (grouping-key synthesis, dense-vs-hash choice).
type Column struct {
	Name        string
	Sections    []Section
	Cardinality int
	NullCount   int
}

// Len returns the total row count across all sections.
func (c *Column) Len() int {
	n := 0
	for _, s := range c.Sections {
		n += s.Data.Len
	}
	return n
}

// EncodingType returns the column's natural (logical) encoding. A
// column always has a uniform logical encoding across its sections even
// when individual sections use different physical codecs.
func (c *Column) EncodingType() types.EncodingType {
	if len(c.Sections) == 0 {
		return types.Null
	}
	return c.Sections[0].LogicalType()
}

// HeapSize estimates the resident bytes owned by c across all sections.
func (c *Column) HeapSize() int {
	n := 0
	for _, s := range c.Sections {
		n += s.Data.HeapSize()
	}
	return n
}

// NewColumnFromBuffer builds a single-section, uncoded Column from a
// materialized buffer (the common case for freshly sealed partitions).
func NewColumnFromBuffer(name string, b *buffer.Buffer, cardinality int) *Column {
	nulls := 0
	if b.Valid != nil {
		for _, v := range b.Valid {
			if !v {
				nulls++
			}
		}
	}
	return &Column{
		Name:        name,
		Sections:    []Section{{Data: b}},
		Cardinality: cardinality,
		NullCount:   nulls,
	}
}
