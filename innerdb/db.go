// Package innerdb is the coordinator gluing the typed dispatch, buffer,
// planner, vm, store and scheduler packages into one queryable engine:
// it owns the table registry, drives ingest and query dispatch onto the
// shared scheduler, maintains the `_meta_tables`/`_meta_queries`
// bookkeeping tables and exposes the TableStats/MemTree reporting
// surfaces `httpapi` renders. Storage, planning and scheduling stay
// behind this one facade; none of those concerns leak into the HTTP
// layer.
package innerdb

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/andreheringer/LocustDB/errors"
	"github.com/andreheringer/LocustDB/expr"
	"github.com/andreheringer/LocustDB/planner"
	"github.com/andreheringer/LocustDB/scheduler"
	"github.com/andreheringer/LocustDB/sqlparser"
	"github.com/andreheringer/LocustDB/store"
	"github.com/andreheringer/LocustDB/value"
)

// Options configures a DB instance: worker thread count, ingest batch
// size, background disk-read concurrency and the soft resident-memory
// ceiling enforced by the scheduler's MemoryEnforcer.
type Options struct {
	Threads             int
	BatchSize           int
	ReadThreads         int
	MemSizeLimitTables  int64
}

// DefaultOptions returns the options cmd/locustdb falls back to absent
// any flag or config file overrides.
func DefaultOptions() Options {
	return Options{Threads: 4, BatchSize: 1024, ReadThreads: 2, MemSizeLimitTables: 0}
}

// DB is the coordinator: a table registry plus the shared scheduler,
// Lru and disk-read scheduler every table's queries and ingests use.
type DB struct {
	opts Options
	disk store.DiskStore

	lru        *store.Lru
	diskReader *store.DiskReadScheduler
	sched      *scheduler.Scheduler
	memEnf     *scheduler.MemoryEnforcer

	mu     sync.RWMutex
	tables map[string]*store.Table
}

// NewDB constructs a DB, restoring any non-resident partitions described
// by disk's persisted metadata, and starts the
// scheduler's worker pool and memory enforcer. disk may be nil, in which
// case no persistence is configured and every partition is memory-only.
func NewDB(opts Options, disk store.DiskStore) (*DB, error) {
	lru := store.NewLru()

	var tables map[string]*store.Table
	var err error
	if disk != nil {
		tables, err = store.LoadTableMetadata(opts.BatchSize, disk, lru)
		if err != nil {
			return nil, errors.IOErrorf(err, "loading persisted table metadata")
		}
	} else {
		tables = make(map[string]*store.Table)
	}

	db := &DB{
		opts:       opts,
		disk:       disk,
		lru:        lru,
		diskReader: store.NewDiskReadScheduler(disk, lru, opts.ReadThreads),
		sched:      scheduler.NewScheduler(opts.Threads),
		tables:     tables,
	}
	db.sched.Start()

	db.memEnf = &scheduler.MemoryEnforcer{
		Limit:    opts.MemSizeLimitTables,
		HeapSize: func() int64 { return int64(db.heapSizeOfChildren()) },
		Evict:    db.evictOne,
	}
	db.memEnf.Start()

	db.ensureMetaTable("_meta_tables")
	db.ensureMetaTable("_meta_queries")

	return db, nil
}

// Close stops the background worker pool and memory enforcer. It does
// not flush resident data; callers relying on persistence must configure
// a DiskStore, which is written to on every partition seal.
func (db *DB) Close() {
	db.memEnf.Stop()
	db.sched.Stop()
}

// fault is the shared fault-in closure every table's partitions use to
// bring non-resident columns back into memory via the disk-read
// scheduler.
func (db *DB) fault() func(table string, partitionID uint64, meta store.ColumnMeta) (*store.Column, error) {
	if db.disk == nil {
		return nil
	}
	return db.diskReader.FaultFunc()
}

// table returns the named table, creating and registering it if it does
// not yet exist. It records no `_meta_tables` row; CreateTable does.
func (db *DB) table(name string) *store.Table {
	db.mu.RLock()
	t, ok := db.tables[name]
	db.mu.RUnlock()
	if ok {
		return t
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables[name]; ok {
		return t
	}
	t = store.NewTable(name, db.opts.BatchSize, db.lru, db.disk)
	db.tables[name] = t
	return t
}

// ensureMetaTable creates one of the two bookkeeping tables up front so
// it shows up in TableNames/Stats even before its first row lands.
func (db *DB) ensureMetaTable(name string) {
	db.table(name)
}

// CreateTable ensures name exists, recording a `_meta_tables` row the
// first time it is created.
func (db *DB) CreateTable(name string) {
	db.mu.RLock()
	_, exists := db.tables[name]
	db.mu.RUnlock()
	db.table(name)
	if !exists {
		db.table("_meta_tables").Ingest(store.MetaTableRow(name))
	}
}

// Ingest appends one row to table name, creating the table (and its
// `_meta_tables` bookkeeping row) if necessary.
func (db *DB) Ingest(table string, row map[string]value.RawVal) {
	db.CreateTable(table)
	db.table(table).Ingest(row)
}

// IngestColumns bulk-ingests a columnar batch into table, creating it if
// necessary.
func (db *DB) IngestColumns(table string, cols map[string][]value.RawVal) {
	db.CreateTable(table)
	db.table(table).IngestColumns(cols)
}

// TableNames returns every known table name, including the
// `_meta_tables`/`_meta_queries` bookkeeping tables.
func (db *DB) TableNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return maps.Keys(db.tables)
}

// TableStats returns the resident-usage snapshot for every table,
// surfaced by GET /tables.
func (db *DB) TableStats() []store.TableStats {
	db.mu.RLock()
	tables := maps.Values(db.tables)
	db.mu.RUnlock()
	out := make([]store.TableStats, len(tables))
	for i, t := range tables {
		out[i] = t.Stats()
	}
	return out
}

// MemTree returns the recursive per-table, per-column memory usage
// tree.
func (db *DB) MemTree(depth int) []store.MemTreeTable {
	db.mu.RLock()
	tables := maps.Values(db.tables)
	db.mu.RUnlock()
	out := make([]store.MemTreeTable, len(tables))
	for i, t := range tables {
		out[i] = t.MemTree(depth)
	}
	return out
}

// ColumnNames returns the column names of table name, the same set
// `SELECT * FROM name LIMIT 0` would report, used by GET /table/{name}.
func (db *DB) ColumnNames(name string) ([]string, error) {
	db.mu.RLock()
	t, ok := db.tables[name]
	db.mu.RUnlock()
	if !ok {
		return nil, errors.TypeErrorf("no such table %q", name)
	}
	seen := map[string]struct{}{}
	var names []string
	for _, p := range t.Snapshot() {
		for _, n := range p.ColumnNames() {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}
	return names, nil
}

func (db *DB) heapSizeOfChildren() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n := 0
	for _, t := range db.tables {
		n += t.HeapSizeOfChildren()
	}
	return n
}

func (db *DB) evictOne() bool {
	key, ok := db.lru.Evict()
	if !ok {
		return false
	}
	db.mu.RLock()
	tables := maps.Values(db.tables)
	db.mu.RUnlock()
	for _, t := range tables {
		if t.Evict(key) > 0 {
			return true
		}
	}
	return false
}

// QueryResult wraps a planner.Result with the bookkeeping fields
// recorded alongside it in `_meta_queries`.
type QueryResult struct {
	*planner.Result
	RequestID uuid.UUID
	Duration  time.Duration
}

// QuerySQL parses sql via the external sqlparser collaborator and runs
// it; see Query for execution semantics.
func (db *DB) QuerySQL(sql string) (*QueryResult, error) {
	q, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, err
	}
	return db.query(sql, q)
}

// Query runs an already-parsed query, skipping sqlparser. Used by
// callers (tests, a future non-SQL API) holding an *expr.Query directly.
func (db *DB) Query(q *expr.Query) (*QueryResult, error) {
	return db.query("", q)
}

// query dispatches q's table's partitions as a scheduled task (the
// call blocks the caller's goroutine but the calling path can be
// invoked concurrently across many HTTP requests), runs the planner/vm
// pipeline
// once against the whole table's concatenated partitions (see
// store.Concat's doc comment for why this, rather than a per-partition
// scatter/merge, is this coordinator's merge strategy), and records a
// `_meta_queries` row.
func (db *DB) query(sqlText string, q *expr.Query) (*QueryResult, error) {
	db.mu.RLock()
	t, ok := db.tables[q.Table]
	db.mu.RUnlock()
	if !ok {
		return nil, errors.TypeErrorf("no such table %q", q.Table)
	}

	start := time.Now()
	var result *planner.Result
	var runErr error
	done := make(chan struct{})
	db.sched.Schedule(scheduler.NewFunc(func() {
		defer close(done)
		merged, err := db.snapshotView(t)
		if err != nil {
			runErr = err
			return
		}
		result, runErr = planner.RunQuery(q, merged, db.fault(), db.opts.BatchSize)
	}))
	<-done
	if runErr != nil {
		return nil, runErr
	}
	duration := time.Since(start)

	reqID := uuid.New()
	if q.Table != "_meta_queries" {
		db.table("_meta_queries").Ingest(metaQueryRow(reqID, sqlText, len(result.Rows), duration))
	}

	return &QueryResult{Result: result, RequestID: reqID, Duration: duration}, nil
}

func metaQueryRow(id uuid.UUID, sqlText string, rows int, d time.Duration) map[string]value.RawVal {
	return map[string]value.RawVal{
		"timestamp":   value.Int(time.Now().Unix()),
		"request_id":  value.Str(id.String()),
		"query":       value.Str(sqlText),
		"rows":        value.Int(int64(rows)),
		"duration_ms": value.Int(d.Milliseconds()),
	}
}

// ExplainSQL parses sql and renders its primary pass's compiled operator
// chain without executing it to materialized rows.
func (db *DB) ExplainSQL(sql string) (string, error) {
	q, err := sqlparser.Parse(sql)
	if err != nil {
		return "", err
	}
	db.mu.RLock()
	t, ok := db.tables[q.Table]
	db.mu.RUnlock()
	if !ok {
		return "", errors.TypeErrorf("no such table %q", q.Table)
	}
	merged, err := db.snapshotView(t)
	if err != nil {
		return "", err
	}
	return planner.Explain(q, merged, db.fault(), db.opts.BatchSize)
}

// snapshotView returns the partition a query runs against: the single
// partition itself when the table has exactly one (keeping its coded
// sections intact for the planner's decode-aware scans), or the
// concatenation of all partitions otherwise (see store.Concat).
func (db *DB) snapshotView(t *store.Table) (*store.Partition, error) {
	parts := t.Snapshot()
	if len(parts) == 1 {
		return parts[0], nil
	}
	return store.Concat(parts, db.fault())
}
