package store

import (
	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/types"
)

// Concat merges parts (ordinarily a table's full Snapshot) into one
// fully resident, fault-free partition spanning every row of every
// partition, in partition order. A column missing from some partitions
// (e.g. the table's schema grew over time) is padded with null/zero
// rows for the partitions that lack it. fault is used to bring any
// non-resident column data into memory before copying it; it may be
// nil if every partition passed is already fully resident.
//
// Running a query's aggregation/ordering/limit pass once against the
// concatenated view, rather than against each partition independently
// and merging partial results, keeps grouping and ORDER BY/LIMIT
// correct without a partial-aggregate merge step; see DESIGN.md for the
// tradeoff this trades away (per-partition plan parallelism).
func Concat(parts []*Partition, fault func(table string, partitionID uint64, meta ColumnMeta) (*Column, error)) (*Partition, error) {
	var order []string
	seen := map[string]bool{}
	for _, p := range parts {
		for _, n := range p.ColumnNames() {
			if !seen[n] {
				seen[n] = true
				order = append(order, n)
			}
		}
	}

	total := 0
	for _, p := range parts {
		total += p.Len
	}

	cols := make([]*Column, 0, len(order))
	for _, name := range order {
		logical := types.Null
		cardinality := 0
		found := false
		for _, p := range parts {
			if c, err := p.Column(name, fault); err == nil {
				logical = c.EncodingType()
				cardinality = c.Cardinality
				found = true
				break
			}
		}
		if !found {
			continue
		}

		out := buffer.New(logical, total)
		for _, p := range parts {
			c, err := p.Column(name, fault)
			if err != nil {
				buffer.AppendNulls(out, p.Len)
				continue
			}
			for _, sec := range c.Sections {
				data := sec.Data
				if sec.Codec != nil {
					data = sec.Codec.Decode(data)
				}
				buffer.AppendAll(out, data)
			}
		}
		cols = append(cols, NewColumnFromBuffer(name, out, cardinality))
	}

	return NewPartition(0, "", cols, nil), nil
}
