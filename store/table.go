package store

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/andreheringer/LocustDB/value"
)

// Table holds an immutable-partition map plus a row-oriented ingest
// buffer under a mutex. On every ingest call, once the buffer reaches
// batchSize rows it is sealed into a new immutable partition. The
// bookkeeping tables _meta_tables and _meta_queries use a batch size
// override of 1 and 10 respectively.
type Table struct {
	name      string
	batchSize int

	partitionsMu sync.RWMutex
	partitions   map[uint64]*Partition

	bufferMu sync.Mutex
	buffer   *RowBuffer

	lru   *Lru
	store DiskStore // may be nil (no persistence configured)
}

func batchSizeOverride(batchSize int, tableName string) int {
	switch tableName {
	case "_meta_tables":
		return 1
	case "_meta_queries":
		return 10
	default:
		return batchSize
	}
}

// NewTable constructs an empty table.
func NewTable(name string, batchSize int, lru *Lru, disk DiskStore) *Table {
	return &Table{
		name:       name,
		batchSize:  batchSizeOverride(batchSize, name),
		partitions: make(map[uint64]*Partition),
		buffer:     NewRowBuffer(),
		lru:        lru,
		store:      disk,
	}
}

func (t *Table) Name() string { return t.name }

// Snapshot returns every sealed partition plus, if the ingest buffer is
// non-empty, a transient partition with id IngestPartitionID built from
// a clone of the buffer. Cloning (rather than locking the buffer for
// the query's duration) lets reads proceed without blocking writers.
func (t *Table) Snapshot() []*Partition {
	t.partitionsMu.RLock()
	out := make([]*Partition, 0, len(t.partitions)+1)
	for _, p := range t.partitions {
		out = append(out, p)
	}
	t.partitionsMu.RUnlock()
	// Seal order, with the transient ingest view (id MAX) appended
	// last, so readers observe rows in ingest order.
	slices.SortFunc(out, func(a, b *Partition) bool { return a.ID < b.ID })

	t.bufferMu.Lock()
	if t.buffer.Len > 0 {
		clone := t.buffer.Clone()
		t.bufferMu.Unlock()
		cols := clone.ToColumns()
		colList := make([]*Column, 0, len(cols))
		for _, c := range cols {
			colList = append(colList, c)
		}
		out = append(out, NewPartition(IngestPartitionID, t.name, colList, t.lru))
	} else {
		t.bufferMu.Unlock()
	}
	return out
}

// Ingest appends one row to the buffer, sealing a new partition if the
// buffer has reached batchSize.
func (t *Table) Ingest(row map[string]value.RawVal) {
	t.bufferMu.Lock()
	defer t.bufferMu.Unlock()
	t.buffer.PushRow(row)
	t.sealIfNeededLocked()
}

// IngestColumns bulk-ingests a batch of already-columnar data, the
// bulk counterpart of row-at-a-time Ingest.
func (t *Table) IngestColumns(cols map[string][]value.RawVal) {
	t.bufferMu.Lock()
	defer t.bufferMu.Unlock()
	t.buffer.PushColumns(cols)
	t.sealIfNeededLocked()
}

func (t *Table) sealIfNeededLocked() {
	if t.buffer.Len < t.batchSize {
		return
	}
	full := t.buffer
	t.buffer = NewRowBuffer()
	t.seal(full)
}

// seal converts a full row buffer into an immutable partition, assigns
// it an id, persists it (if a DiskStore is configured) and registers
// its columns with the Lru.
func (t *Table) seal(full *RowBuffer) {
	colsMap := full.ToColumns()
	cols := make([]*Column, 0, len(colsMap))
	for _, c := range colsMap {
		cols = append(cols, c)
	}

	t.partitionsMu.Lock()
	id := uint64(len(t.partitions))
	partition := NewPartition(id, t.name, cols, t.lru)
	t.partitions[id] = partition
	t.partitionsMu.Unlock()

	if t.store != nil {
		_ = t.store.StorePartition(id, t.name, cols)
	}

	for _, c := range cols {
		t.lru.Put(ColumnKey{PartitionID: id, Column: c.Name})
	}
}

// LoadPartition inserts an already-constructed partition (used when
// restoring non-resident metadata at startup).
func (t *Table) LoadPartition(p *Partition) {
	t.partitionsMu.Lock()
	defer t.partitionsMu.Unlock()
	t.partitions[p.ID] = p
}

// Restore re-attaches a faulted-in column to partition id.
func (t *Table) Restore(id uint64, col *Column) {
	t.partitionsMu.RLock()
	p, ok := t.partitions[id]
	t.partitionsMu.RUnlock()
	if ok {
		p.Restore(col)
	}
}

// Evict drops key's resident storage on whichever partition holds it,
// returning the number of bytes freed.
func (t *Table) Evict(key ColumnKey) int {
	t.partitionsMu.RLock()
	p, ok := t.partitions[key.PartitionID]
	t.partitionsMu.RUnlock()
	if !ok {
		return 0
	}
	return p.Evict(key.Column)
}

// MaxPartitionID returns the largest partition id currently held (0 if
// none). Sealing does not consult it: a new partition's id is the
// current partition count.
func (t *Table) MaxPartitionID() uint64 {
	t.partitionsMu.RLock()
	defer t.partitionsMu.RUnlock()
	var max uint64
	for id := range t.partitions {
		if id > max {
			max = id
		}
	}
	return max
}

// HeapSizeOfChildren sums the resident heap usage of every partition
// plus the ingest buffer.
func (t *Table) HeapSizeOfChildren() int {
	t.partitionsMu.RLock()
	n := 0
	for _, p := range t.partitions {
		n += p.HeapSize()
	}
	t.partitionsMu.RUnlock()

	t.bufferMu.Lock()
	n += t.buffer.HeapSize()
	t.bufferMu.Unlock()
	return n
}

// TableStats summarizes a table: row/batch counts and a per-column
// resident byte breakdown, surfaced by GET /tables.
type TableStats struct {
	Name           string
	Rows           int
	Batches        int
	BatchesBytes   int
	BufferLength   int
	BufferBytes    int
	SizePerColumn  map[string]int
}

// Stats computes a TableStats snapshot.
func (t *Table) Stats() TableStats {
	partitions := t.Snapshot()
	sizePerColumn := make(map[string]int)
	rows, batchesBytes := 0, 0
	for _, p := range partitions {
		rows += p.Len
		batchesBytes += p.HeapSize()
		for name, sz := range p.HeapSizePerColumn() {
			sizePerColumn[name] += sz
		}
	}
	t.bufferMu.Lock()
	bufLen, bufBytes := t.buffer.Len, t.buffer.HeapSize()
	t.bufferMu.Unlock()

	return TableStats{
		Name:          t.name,
		Rows:          rows,
		Batches:       len(partitions),
		BatchesBytes:  batchesBytes,
		BufferLength:  bufLen,
		BufferBytes:   bufBytes,
		SizePerColumn: sizePerColumn,
	}
}

// MemTreeTable is a recursive per-table, per-column memory usage
// summary.
type MemTreeTable struct {
	Name           string
	Rows           int
	FullyResident  bool
	SizeBytes      int
	Columns        map[string]int
}

// MemTree builds the memory-usage tree for this table. depth bounds
// how much nested detail is reported: per-column byte counts appear
// only when depth > 1.
func (t *Table) MemTree(depth int) MemTreeTable {
	tree := MemTreeTable{Name: t.name, Columns: make(map[string]int), FullyResident: true}
	for _, p := range t.Snapshot() {
		tree.Rows += p.Len
		for name, sz := range p.HeapSizePerColumn() {
			if depth > 1 {
				tree.Columns[name] += sz
			}
			tree.SizeBytes += sz
		}
		for _, name := range p.ColumnNames() {
			if !p.Resident(name) {
				tree.FullyResident = false
			}
		}
	}
	return tree
}

// metaTableRow builds the (timestamp, name) bookkeeping row recorded
// in _meta_tables when a table is created.
func metaTableRow(name string) map[string]value.RawVal {
	return map[string]value.RawVal{
		"timestamp": value.Int(time.Now().Unix()),
		"name":      value.Str(name),
	}
}

// MetaTableRow is exported so the coordinator can append a bookkeeping
// row to _meta_tables on table creation.
func MetaTableRow(name string) map[string]value.RawVal { return metaTableRow(name) }
