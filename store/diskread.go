package store

import "sync"

// diskReadKey identifies one in-flight fault-in request.
type diskReadKey struct {
	table       string
	partitionID uint64
	column      string
}

// diskReadCall is one in-flight read: the leader fills col/err, then
// releases every waiter blocked on wg.
type diskReadCall struct {
	wg  sync.WaitGroup
	col *Column
	err error
}

// DiskReadScheduler is the engine's single point of contact with
// DiskStore.LoadColumn: it coalesces concurrent requests for the same
// (partition, column) into one underlying read, and bounds the number
// of concurrently in-flight reads to ReadThreads so a query touching
// many non-resident columns cannot flood the store.
type DiskReadScheduler struct {
	store DiskStore
	lru   *Lru
	sem   chan struct{}

	mu       sync.Mutex
	inflight map[diskReadKey]*diskReadCall
}

// NewDiskReadScheduler builds a scheduler bounding concurrent reads to
// readThreads (at least 1).
func NewDiskReadScheduler(store DiskStore, lru *Lru, readThreads int) *DiskReadScheduler {
	if readThreads < 1 {
		readThreads = 1
	}
	return &DiskReadScheduler{
		store:    store,
		lru:      lru,
		sem:      make(chan struct{}, readThreads),
		inflight: make(map[diskReadKey]*diskReadCall),
	}
}

// Load faults in column col of partition partitionID in table, blocking
// the calling worker until the read completes. Concurrent callers
// requesting the same (table, partitionID, col) share one underlying
// DiskStore.LoadColumn call.
func (s *DiskReadScheduler) Load(table string, partitionID uint64, col string) (*Column, error) {
	key := diskReadKey{table: table, partitionID: partitionID, column: col}

	s.mu.Lock()
	if c, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		c.wg.Wait()
		return c.col, c.err
	}
	c := &diskReadCall{}
	c.wg.Add(1)
	s.inflight[key] = c
	s.mu.Unlock()

	s.sem <- struct{}{}
	c.col, c.err = s.store.LoadColumn(partitionID, table, col)
	<-s.sem

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	c.wg.Done()

	if c.err == nil && s.lru != nil {
		s.lru.Put(ColumnKey{PartitionID: partitionID, Column: col})
	}
	return c.col, c.err
}

// FaultFunc returns a closure suitable for Partition.Column's fault
// parameter.
func (s *DiskReadScheduler) FaultFunc() func(table string, partitionID uint64, meta ColumnMeta) (*Column, error) {
	return func(table string, partitionID uint64, meta ColumnMeta) (*Column, error) {
		return s.Load(table, partitionID, meta.Name)
	}
}
