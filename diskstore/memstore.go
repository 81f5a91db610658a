// Package diskstore provides concrete implementations of the
// store.DiskStore persistence interface: MemStore, a reference
// in-memory store used by tests and by a coordinator run with no
// configured persistence directory, and FileStore, which persists
// metadata and column sections to a directory on disk (see filestore.go).
//
// The core never interprets the bytes a DiskStore implementation uses
// to represent a column; both implementations here are external
// collaborators wired in by package innerdb, never imported by
// buffer/types/expr/planner/vm.
package diskstore

import (
	"fmt"
	"sync"

	"github.com/andreheringer/LocustDB/store"
)

// MemStore is a process-local, non-persistent store.DiskStore. It
// exists so tests (and a coordinator started without --data-dir) can
// exercise the seal/store/load-on-fault path without touching a
// filesystem.
type MemStore struct {
	mu    sync.Mutex
	parts map[string][]store.PartitionMetadata
	cols  map[string]map[columnKey][]*store.Column
}

type columnKey struct {
	partition uint64
	column    string
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		parts: make(map[string][]store.PartitionMetadata),
		cols:  make(map[string]map[columnKey][]*store.Column),
	}
}

func (m *MemStore) LoadMetadata() ([]store.PartitionMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PartitionMetadata
	for _, pms := range m.parts {
		out = append(out, pms...)
	}
	return out, nil
}

func (m *MemStore) StorePartition(id uint64, table string, columns []*store.Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	metas := make([]store.ColumnMeta, len(columns))
	length := 0
	for i, c := range columns {
		metas[i] = store.ColumnMeta{
			Name:        c.Name,
			Encoding:    c.EncodingType(),
			Cardinality: c.Cardinality,
			NullCount:   c.NullCount,
		}
		if l := c.Len(); l > length {
			length = l
		}
	}
	m.parts[table] = append(m.parts[table], store.PartitionMetadata{
		ID: id, TableName: table, Len: length, Columns: metas,
	})

	if m.cols[table] == nil {
		m.cols[table] = make(map[columnKey][]*store.Column)
	}
	for _, c := range columns {
		k := columnKey{partition: id, column: c.Name}
		m.cols[table][k] = append(m.cols[table][k], c)
	}
	return nil
}

func (m *MemStore) LoadColumn(id uint64, table, col string) (*store.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.cols[table][columnKey{partition: id, column: col}]
	if len(versions) == 0 {
		return nil, fmt.Errorf("diskstore: no stored column %q for partition %d of table %q", col, id, table)
	}
	return versions[len(versions)-1], nil
}
