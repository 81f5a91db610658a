package innerdb

import (
	"testing"

	"github.com/andreheringer/LocustDB/diskstore"
	"github.com/andreheringer/LocustDB/value"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	opts := Options{Threads: 2, BatchSize: 4, ReadThreads: 1}
	db, err := NewDB(opts, diskstore.NewMemStore())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestIngestAndQuery(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 3; i++ {
		db.Ingest("t", map[string]value.RawVal{
			"a": value.Int(int64(i)),
			"b": value.Int(int64(i * 10)),
		})
	}

	res, err := db.QuerySQL("SELECT a, b FROM t WHERE a < 2 ORDER BY a")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if res.Rows[0][0].Int != 0 || res.Rows[1][0].Int != 1 {
		t.Fatalf("rows = %+v, want a=0,1", res.Rows)
	}
}

func TestMetaTablesBookkeeping(t *testing.T) {
	db := newTestDB(t)
	db.CreateTable("orders")

	names := db.TableNames()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["orders"] || !found["_meta_tables"] || !found["_meta_queries"] {
		t.Fatalf("TableNames = %v, want orders/_meta_tables/_meta_queries present", names)
	}

	db.Ingest("orders", map[string]value.RawVal{"id": value.Int(1)})
	if _, err := db.QuerySQL("SELECT id FROM orders"); err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}

	cols, err := db.ColumnNames("orders")
	if err != nil {
		t.Fatalf("ColumnNames: %v", err)
	}
	if len(cols) != 1 || cols[0] != "id" {
		t.Fatalf("ColumnNames = %v, want [id]", cols)
	}
}

func TestQueryAggregate(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 4; i++ {
		db.Ingest("sales", map[string]value.RawVal{
			"region": value.Str("east"),
			"amount": value.Int(int64(i + 1)),
		})
	}

	res, err := db.QuerySQL("SELECT region, SUM(amount) FROM sales GROUP BY region")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(res.Rows))
	}
	if res.Rows[0][1].Float != 10 {
		t.Fatalf("sum = %+v, want 10", res.Rows[0][1])
	}
}

func TestQuerySumI64OverflowPromotesToFloat(t *testing.T) {
	db := newTestDB(t)
	big := int64(1) << 62
	for i := 0; i < 2; i++ {
		db.Ingest("ledger", map[string]value.RawVal{
			"account": value.Str("x"),
			"amount":  value.Int(big),
		})
	}

	res, err := db.QuerySQL("SELECT account, SUM(amount) FROM ledger GROUP BY account")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(res.Rows))
	}
	want := float64(big) * 2
	if res.Rows[0][1].Float != want {
		t.Fatalf("sum = %+v, want %v", res.Rows[0][1], want)
	}
}

func TestQueryMultiColumnDenseGroupBy(t *testing.T) {
	db := newTestDB(t)
	rows := []struct {
		region, bucket, amount int64
	}{
		{0, 0, 1},
		{0, 0, 2},
		{0, 1, 10},
		{1, 0, 100},
		{1, 1, 1000},
		{1, 1, 2000},
	}
	for _, r := range rows {
		db.Ingest("metrics", map[string]value.RawVal{
			"region": value.Int(r.region),
			"bucket": value.Int(r.bucket),
			"amount": value.Int(r.amount),
		})
	}

	res, err := db.QuerySQL("SELECT region, bucket, SUM(amount) FROM metrics GROUP BY region, bucket")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	want := map[[2]int64]float64{
		{0, 0}: 3,
		{0, 1}: 10,
		{1, 0}: 100,
		{1, 1}: 3000,
	}
	if len(res.Rows) != len(want) {
		t.Fatalf("len(Rows) = %d, want %d (%+v)", len(res.Rows), len(want), res.Rows)
	}
	for _, row := range res.Rows {
		key := [2]int64{row[0].Int, row[1].Int}
		sum, ok := want[key]
		if !ok {
			t.Fatalf("unexpected group %v in %+v", key, res.Rows)
		}
		if row[2].Float != sum {
			t.Fatalf("group %v sum = %v, want %v", key, row[2].Float, sum)
		}
	}
}

func TestQueryUnknownTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.QuerySQL("SELECT a FROM nosuch"); err == nil {
		t.Fatalf("expected error for unknown table")
	}
}

func TestExplainSQL(t *testing.T) {
	db := newTestDB(t)
	db.Ingest("t", map[string]value.RawVal{"a": value.Int(1)})
	out, err := db.ExplainSQL("SELECT a FROM t")
	if err != nil {
		t.Fatalf("ExplainSQL: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty explain output")
	}
}

func TestQueryToYear(t *testing.T) {
	db := newTestDB(t)
	for _, ts := range []int64{1577836800, 1609459200} {
		db.Ingest("u", map[string]value.RawVal{"ts": value.Int(ts)})
	}

	res, err := db.QuerySQL("SELECT TO_YEAR(ts) FROM u")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if res.Rows[0][0].Int != 2020 || res.Rows[1][0].Int != 2021 {
		t.Fatalf("rows = %+v, want [2020 2021]", res.Rows)
	}
}

func TestQueryCountAfterSingleIngest(t *testing.T) {
	db := newTestDB(t)
	db.Ingest("single", map[string]value.RawVal{"a": value.Int(7)})

	res, err := db.QuerySQL("SELECT COUNT(1) FROM single")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0].Int != 1 {
		t.Fatalf("rows = %+v, want one row counting 1", res.Rows)
	}
}

func TestQueryGroupCountWithFilter(t *testing.T) {
	db := newTestDB(t)
	rows := []struct {
		a, b int64
		s    string
	}{
		{1, 10, "x"}, {2, 20, "y"}, {1, 30, "x"}, {3, 40, "z"},
	}
	for _, r := range rows {
		db.Ingest("t", map[string]value.RawVal{
			"a": value.Int(r.a), "b": value.Int(r.b), "s": value.Str(r.s),
		})
	}

	res, err := db.QuerySQL("SELECT s, COUNT(1) FROM t WHERE a < 3 GROUP BY s")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %+v, want 2 groups", res.Rows)
	}
	if res.Rows[0][0].Str != "x" || res.Rows[0][1].Int != 2 {
		t.Fatalf("first group = %+v, want (x, 2)", res.Rows[0])
	}
	if res.Rows[1][0].Str != "y" || res.Rows[1][1].Int != 1 {
		t.Fatalf("second group = %+v, want (y, 1)", res.Rows[1])
	}
}

func TestQuerySelectStarLimitZero(t *testing.T) {
	db := newTestDB(t)
	db.Ingest("t", map[string]value.RawVal{
		"a": value.Int(1), "b": value.Int(10), "s": value.Str("x"),
	})

	res, err := db.QuerySQL("SELECT * FROM t LIMIT 0")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("rows = %+v, want none", res.Rows)
	}
	want := []string{"a", "b", "s"}
	if len(res.Colnames) != 3 {
		t.Fatalf("colnames = %v, want %v", res.Colnames, want)
	}
	for i, w := range want {
		if res.Colnames[i] != w {
			t.Fatalf("colnames = %v, want %v", res.Colnames, want)
		}
	}
}

func TestQueryAggregateOrderByLimit(t *testing.T) {
	db := newTestDB(t)
	rows := []struct {
		a, b int64
	}{
		{1, 10}, {2, 20}, {1, 30}, {3, 40},
	}
	for _, r := range rows {
		db.Ingest("t", map[string]value.RawVal{"a": value.Int(r.a), "b": value.Int(r.b)})
	}

	res, err := db.QuerySQL("SELECT a, SUM(b) FROM t ORDER BY SUM(b) DESC LIMIT 2")
	if err != nil {
		t.Fatalf("QuerySQL: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %+v, want 2", res.Rows)
	}
	if res.Rows[0][0].Int != 1 || res.Rows[0][1].Float != 40 {
		t.Fatalf("row 0 = %+v, want (1, 40)", res.Rows[0])
	}
	if res.Rows[1][0].Int != 3 || res.Rows[1][1].Float != 40 {
		t.Fatalf("row 1 = %+v, want (3, 40)", res.Rows[1])
	}
}

func TestRestartRestoresNonResidentPartitions(t *testing.T) {
	disk := diskstore.NewMemStore()
	opts := Options{Threads: 2, BatchSize: 2, ReadThreads: 1}
	db, err := NewDB(opts, disk)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	db.Ingest("t", map[string]value.RawVal{"a": value.Int(1)})
	db.Ingest("t", map[string]value.RawVal{"a": value.Int(2)}) // seals and persists
	db.Close()

	db2, err := NewDB(opts, disk)
	if err != nil {
		t.Fatalf("NewDB after restart: %v", err)
	}
	t.Cleanup(db2.Close)

	res, err := db2.QuerySQL("SELECT a FROM t ORDER BY a")
	if err != nil {
		t.Fatalf("QuerySQL after restart: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0][0].Int != 1 || res.Rows[1][0].Int != 2 {
		t.Fatalf("rows = %+v, want restored [1 2]", res.Rows)
	}
}
