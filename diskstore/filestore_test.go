package diskstore

import (
	"os"
	"testing"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/store"
	"github.com/andreheringer/LocustDB/types"
)

func newColumn(t *testing.T, name string, vals ...int64) *store.Column {
	t.Helper()
	b := buffer.New(types.I64, len(vals))
	for _, v := range vals {
		b.AppendI64(v)
	}
	return store.NewColumnFromBuffer(name, b, len(vals))
}

func TestFileStoreRoundTripSigned(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	col := newColumn(t, "a", 1, 2, 3)
	if err := fs.StorePartition(1, "t", []*store.Column{col}); err != nil {
		t.Fatalf("StorePartition: %v", err)
	}

	metas, err := fs.LoadMetadata()
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if len(metas) != 1 || metas[0].TableName != "t" {
		t.Fatalf("metas = %+v", metas)
	}

	loaded, err := fs.LoadColumn(1, "t", "a")
	if err != nil {
		t.Fatalf("LoadColumn: %v", err)
	}
	if loaded.Len() != 3 {
		t.Fatalf("loaded.Len() = %d, want 3", loaded.Len())
	}
}

func TestFileStoreRejectsTamperedColumn(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	col := newColumn(t, "a", 1, 2, 3)
	if err := fs.StorePartition(1, "t", []*store.Column{col}); err != nil {
		t.Fatalf("StorePartition: %v", err)
	}

	path := fs.columnPath("t", 1, "a")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := fs.LoadColumn(1, "t", "a"); err == nil {
		t.Fatalf("expected signature verification failure, got nil error")
	}
}

func TestFileStoreWrongKeyRejected(t *testing.T) {
	dir := t.TempDir()
	var key1, key2 Key
	key1[0] = 1
	key2[0] = 2

	fs1, err := NewFileStoreWithKey(dir, key1)
	if err != nil {
		t.Fatalf("NewFileStoreWithKey: %v", err)
	}
	col := newColumn(t, "a", 1, 2, 3)
	if err := fs1.StorePartition(1, "t", []*store.Column{col}); err != nil {
		t.Fatalf("StorePartition: %v", err)
	}

	fs2, err := NewFileStoreWithKey(dir, key2)
	if err != nil {
		t.Fatalf("NewFileStoreWithKey: %v", err)
	}
	if _, err := fs2.LoadMetadata(); err == nil {
		t.Fatalf("expected metadata signature mismatch with wrong key")
	}
}

func TestFileStoreReopenReusesKey(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	col := newColumn(t, "a", 1, 2, 3)
	if err := fs.StorePartition(0, "t", []*store.Column{col}); err != nil {
		t.Fatalf("StorePartition: %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore (reopen): %v", err)
	}
	metas, err := reopened.LoadMetadata()
	if err != nil {
		t.Fatalf("LoadMetadata after reopen: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("metas = %+v, want 1 entry", metas)
	}
	if _, err := reopened.LoadColumn(0, "t", "a"); err != nil {
		t.Fatalf("LoadColumn after reopen: %v", err)
	}
}
