package store

// LoadTableMetadata reads every persisted PartitionMetadata from disk
// and reconstructs one Table per distinct table name, each containing
// only non-resident partitions; resident data is faulted in on first
// access.
func LoadTableMetadata(batchSize int, disk DiskStore, lru *Lru) (map[string]*Table, error) {
	tables := make(map[string]*Table)
	mds, err := disk.LoadMetadata()
	if err != nil {
		return nil, err
	}
	for _, md := range mds {
		t, ok := tables[md.TableName]
		if !ok {
			t = NewTable(md.TableName, batchSize, lru, disk)
			tables[md.TableName] = t
		}
		p := NewNonResidentPartition(md.ID, md.TableName, md.Len, md.Columns, lru)
		t.LoadPartition(p)
	}
	return tables, nil
}
