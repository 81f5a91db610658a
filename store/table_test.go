package store

import (
	"testing"

	"github.com/andreheringer/LocustDB/value"
)

func TestIngestSealInvariant(t *testing.T) {
	lru := NewLru()
	tbl := NewTable("t", 4, lru, nil)

	for i := 0; i < 4; i++ {
		tbl.Ingest(map[string]value.RawVal{"a": value.Int(int64(i))})
	}

	tbl.partitionsMu.RLock()
	n := len(tbl.partitions)
	tbl.partitionsMu.RUnlock()
	if n != 1 {
		t.Fatalf("expected exactly one new partition after seal, got %d", n)
	}
	p, ok := tbl.partitions[0]
	if !ok {
		t.Fatalf("expected partition id 0")
	}
	if p.Len != 4 {
		t.Fatalf("expected sealed partition len 4, got %d", p.Len)
	}

	tbl.bufferMu.Lock()
	bufLen := tbl.buffer.Len
	tbl.bufferMu.Unlock()
	if bufLen != 0 {
		t.Fatalf("buffer should be empty immediately after a seal, got len %d", bufLen)
	}

	// Second seal produces id 1.
	for i := 0; i < 4; i++ {
		tbl.Ingest(map[string]value.RawVal{"a": value.Int(int64(i))})
	}
	if _, ok := tbl.partitions[1]; !ok {
		t.Fatalf("expected a second partition with id 1")
	}
}

func TestSnapshotIncludesTransientIngestBuffer(t *testing.T) {
	lru := NewLru()
	tbl := NewTable("t", 100, lru, nil)
	tbl.Ingest(map[string]value.RawVal{"a": value.Int(1)})

	snap := tbl.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 transient partition, got %d", len(snap))
	}
	if snap[0].ID != IngestPartitionID {
		t.Fatalf("expected transient partition id %d, got %d", IngestPartitionID, snap[0].ID)
	}
}

func TestLruEvictMonotonicity(t *testing.T) {
	lru := NewLru()
	k1 := ColumnKey{PartitionID: 0, Column: "a"}
	k2 := ColumnKey{PartitionID: 0, Column: "b"}
	lru.Put(k1)
	lru.Put(k2)

	victim, ok := lru.Evict()
	if !ok || victim != k1 {
		t.Fatalf("expected %v to be evicted first, got %v", k1, victim)
	}
	if _, ok := lru.Evict(); !ok {
		t.Fatalf("expected a second victim")
	}
	if _, ok := lru.Evict(); ok {
		t.Fatalf("expected lru to be empty")
	}
}

func TestSealPicksColumnCodecs(t *testing.T) {
	lru := NewLru()
	tbl := NewTable("t", 4, lru, nil)
	words := []string{"x", "y", "x", "x"}
	for i := 0; i < 4; i++ {
		tbl.Ingest(map[string]value.RawVal{
			"small": value.Int(int64(i)),      // range 3: bit-packs
			"wide":  value.Int(int64(i) * 1000), // range 3000: stays I64
			"word":  value.Str(words[i]),        // 2 distinct of 4: dict-codes
		})
	}

	tbl.partitionsMu.RLock()
	p := tbl.partitions[0]
	tbl.partitionsMu.RUnlock()

	small, err := p.Column("small", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(small.Sections) != 1 || small.Sections[0].Codec == nil {
		t.Fatalf("small should be bit-packed, got %+v", small.Sections)
	}
	if got := small.Sections[0].Codec.PhysicalType(); got.String() != "U8" {
		t.Fatalf("small physical type = %s, want U8", got)
	}

	wide, err := p.Column("wide", nil)
	if err != nil {
		t.Fatal(err)
	}
	if wide.Sections[0].Codec != nil {
		t.Fatalf("wide should stay uncoded, got codec %v", wide.Sections[0].Codec)
	}

	word, err := p.Column("word", nil)
	if err != nil {
		t.Fatal(err)
	}
	if word.Sections[0].Codec == nil {
		t.Fatalf("word should be dictionary-coded")
	}
	if word.Cardinality != 2 {
		t.Fatalf("word cardinality = %d, want 2", word.Cardinality)
	}
}

func TestConcatDecodesAndPadsMissingColumns(t *testing.T) {
	lru := NewLru()
	tbl := NewTable("t", 2, lru, nil)
	tbl.Ingest(map[string]value.RawVal{"a": value.Int(1)})
	tbl.Ingest(map[string]value.RawVal{"a": value.Int(2)}) // seals partition 0
	tbl.Ingest(map[string]value.RawVal{"a": value.Int(3), "b": value.Str("s")})
	tbl.Ingest(map[string]value.RawVal{"a": value.Int(4), "b": value.Str("t")}) // seals partition 1

	merged, err := Concat(tbl.Snapshot(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Len != 4 {
		t.Fatalf("merged.Len = %d, want 4", merged.Len)
	}
	a, err := merged.Column("a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 4 {
		t.Fatalf("a.Len() = %d, want 4", a.Len())
	}
	if a.Sections[0].Codec != nil {
		t.Fatalf("concat output should be decoded, got codec %v", a.Sections[0].Codec)
	}
	b, err := merged.Column("b", nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 4 {
		t.Fatalf("b.Len() = %d, want 4 (2 padded rows from partition 0)", b.Len())
	}
}
