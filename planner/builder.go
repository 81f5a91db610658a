package planner

import (
	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/store"
	"github.com/andreheringer/LocustDB/types"
	"github.com/andreheringer/LocustDB/vm"
)

// builder accumulates the operator chain and scratchpad allocations for
// one partition's plan; the executor receives the finished chain in
// plan order.
type builder struct {
	partition *store.Partition
	fault     func(table string, partitionID uint64, meta store.ColumnMeta) (*store.Column, error)
	sp        *buffer.Scratchpad
	ops       []vm.Operator
	colCache  map[string]colRef
}

type colRef struct {
	ref buffer.Ref
	enc types.EncodingType
}

// newBuilder returns a builder for one partition's plan. fault may be
// nil when every column of partition is known to be resident (e.g. the
// transient ingest-buffer partition).
func newBuilder(partition *store.Partition, fault func(string, uint64, store.ColumnMeta) (*store.Column, error), sp *buffer.Scratchpad) *builder {
	return &builder{partition: partition, fault: fault, sp: sp, colCache: map[string]colRef{}}
}

func (b *builder) push(op vm.Operator) { b.ops = append(b.ops, op) }

// scanColumn reads column name from the partition exactly once per plan;
// subsequent references reuse the scanned buffer before any filter is
// applied.
func (b *builder) scanColumn(name string) (colRef, error) {
	if c, ok := b.colCache[name]; ok {
		return c, nil
	}
	if _, ok := b.partition.Meta(name); !ok {
		return colRef{}, errors.TypeErrorf("no such column: %q", name)
	}
	col, err := b.partition.Column(name, b.fault)
	if err != nil {
		return colRef{}, errors.IOErrorf(err, "faulting in column %q", name)
	}
	enc := col.EncodingType()
	var c colRef
	if codec := singleSectionCodec(col); codec != nil {
		// Scan the physical bytes and decode through the section's
		// codec as a separate plan node, so the decode is visible in
		// the operator chain (and future pushdowns onto the encoded
		// form have a raw buffer to consume).
		raw := b.sp.Alloc(codec.PhysicalType())
		b.push(vm.NewRawColumnScanOp(col, raw))
		out := b.sp.Alloc(enc)
		b.push(vm.NewDecodeOp(raw, out, codec))
		c = colRef{ref: out, enc: enc}
	} else {
		out := b.sp.Alloc(enc)
		b.push(vm.NewColumnScanOp(col, out))
		c = colRef{ref: out, enc: enc}
	}
	b.colCache[name] = c
	return c, nil
}

// singleSectionCodec returns the codec shared by col's only section, or
// nil if col is uncoded or multi-section (multi-section columns decode
// inline during the scan).
func singleSectionCodec(col *store.Column) buffer.Codec {
	if len(col.Sections) == 1 {
		return col.Sections[0].Codec
	}
	return nil
}

// applyFilter compiles a (ref, enc) pair under f, returning a possibly
// new ref holding only the rows f selects. filterNone is a no-op.
func (b *builder) applyFilter(c colRef, f filter) colRef {
	switch f.kind {
	case filterNone:
		return c
	case filterMask:
		out := b.sp.Alloc(c.enc)
		b.push(vm.NewFilterOp(c.ref, f.ref, out))
		return colRef{ref: out, enc: c.enc}
	case filterIndices:
		out := b.sp.Alloc(c.enc)
		b.push(vm.NewSelectIndicesOp(c.ref, f.ref, out))
		return colRef{ref: out, enc: c.enc}
	default:
		return c
	}
}
