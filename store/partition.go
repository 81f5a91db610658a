package store

import (
	"fmt"
	"sync"

	"github.com/andreheringer/LocustDB/types"
)

// IngestPartitionID is the reserved partition id (the maximum uint64)
// standing in for the live ingest buffer's transient view.
const IngestPartitionID uint64 = ^uint64(0)

// ColumnMeta is the metadata persisted for a non-resident column:
// enough information to describe it to a query (its name and encoding)
// without holding its data resident in memory.
type ColumnMeta struct {
	Name        string
	Encoding    types.EncodingType
	Cardinality int
	NullCount   int
}

// residency holds either a resident column or the metadata needed to
// fault one in.
type residency struct {
	resident *Column
	meta     ColumnMeta
}

func (r *residency) isResident() bool { return r.resident != nil }

// Partition is an immutable (as to row count and column set), possibly
// partially non-resident, chunk of a table: {id, len, columns}. Columns
// move between resident and non-resident states under Lru eviction and
// disk-read fault-in; the set of column names and the partition's row
// count never change after construction.
type Partition struct {
	ID  uint64
	Len int

	table string
	lru   *Lru

	mu      sync.RWMutex
	columns map[string]*residency
}

// NewPartition builds a fully resident partition from sealed columns.
func NewPartition(id uint64, table string, cols []*Column, lru *Lru) *Partition {
	p := &Partition{ID: id, table: table, lru: lru, columns: make(map[string]*residency, len(cols))}
	length := 0
	for _, c := range cols {
		p.columns[c.Name] = &residency{resident: c, meta: metaOf(c)}
		if l := c.Len(); l > length {
			length = l
		}
	}
	p.Len = length
	return p
}

func metaOf(c *Column) ColumnMeta {
	return ColumnMeta{Name: c.Name, Encoding: c.EncodingType(), Cardinality: c.Cardinality, NullCount: c.NullCount}
}

// NewNonResidentPartition builds a partition whose columns are all
// described only by metadata (loaded from disk store metadata at
// startup); resident data is faulted in on first access.
func NewNonResidentPartition(id uint64, table string, length int, metas []ColumnMeta, lru *Lru) *Partition {
	p := &Partition{ID: id, Len: length, table: table, lru: lru, columns: make(map[string]*residency, len(metas))}
	for _, m := range metas {
		p.columns[m.Name] = &residency{meta: m}
	}
	return p
}

// ColumnNames returns the set of column names this partition has
// metadata or data for.
func (p *Partition) ColumnNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.columns))
	for n := range p.columns {
		names = append(names, n)
	}
	return names
}

// Resident reports whether name is currently held in memory.
func (p *Partition) Resident(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.columns[name]
	return ok && r.isResident()
}

// Meta returns the metadata for column name, whether or not it is
// currently resident.
func (p *Partition) Meta(name string) (ColumnMeta, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.columns[name]
	if !ok {
		return ColumnMeta{}, false
	}
	return r.meta, true
}

// Column returns the resident column for name, faulting it in via fault
// if it is not currently resident. fault is nil for the transient
// ingest-buffer partition, which is always fully resident.
func (p *Partition) Column(name string, fault func(table string, partitionID uint64, meta ColumnMeta) (*Column, error)) (*Column, error) {
	p.mu.RLock()
	r, ok := p.columns[name]
	if ok && r.isResident() {
		c := r.resident
		p.mu.RUnlock()
		if p.lru != nil {
			p.lru.Touch(ColumnKey{PartitionID: p.ID, Column: name})
		}
		return c, nil
	}
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("partition %d has no column %q", p.ID, name)
	}
	if fault == nil {
		return nil, fmt.Errorf("column %q of partition %d is non-resident and no fault-in path is available", name, p.ID)
	}
	col, err := fault(p.table, p.ID, r.meta)
	if err != nil {
		return nil, err
	}
	p.Restore(col)
	return col, nil
}

// Restore attaches a freshly faulted-in (or re-ingested) column,
// transitioning it to resident and registering it with the Lru.
func (p *Partition) Restore(col *Column) {
	p.mu.Lock()
	p.columns[col.Name] = &residency{resident: col, meta: metaOf(col)}
	p.mu.Unlock()
	if p.lru != nil {
		p.lru.Put(ColumnKey{PartitionID: p.ID, Column: col.Name})
	}
}

// Evict drops name's resident storage, keeping its metadata so it can
// be re-faulted, and returns the number of bytes freed.
func (p *Partition) Evict(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.columns[name]
	if !ok || !r.isResident() {
		return 0
	}
	freed := r.resident.HeapSize()
	p.columns[name] = &residency{meta: r.meta}
	return freed
}

// HeapSize sums the resident heap usage across every column.
func (p *Partition) HeapSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, r := range p.columns {
		if r.isResident() {
			n += r.resident.HeapSize()
		}
	}
	return n
}

// HeapSizePerColumn returns resident heap usage keyed by column name.
func (p *Partition) HeapSizePerColumn() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int, len(p.columns))
	for name, r := range p.columns {
		if r.isResident() {
			out[name] = r.resident.HeapSize()
		}
	}
	return out
}
