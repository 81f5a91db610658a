package diskstore

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/andreheringer/LocustDB/buffer"
	"github.com/andreheringer/LocustDB/store"
)

// KeyLength is the size in bytes of a FileStore signing Key, matching
// blake2b.New256's maximum HMAC key length.
const KeyLength = 32

// Key is the shared secret FileStore uses to sign and verify every file
// it writes (keyed blake2b-256, HMAC-style).
type Key [KeyLength]byte

// sigLength is the length of the blake2b-256 MAC appended to every
// signed payload.
const sigLength = 32

// sign appends a keyed blake2b-256 MAC of data to its end.
func sign(key Key, data []byte) ([]byte, error) {
	h, err := blake2b.New256(key[:])
	if err != nil {
		return nil, fmt.Errorf("diskstore: signing: %w", err)
	}
	h.Write(data)
	return h.Sum(data), nil
}

// verify splits a signed payload produced by sign back into its
// original bytes, returning ErrBadSignature if the trailing MAC does
// not match key and the payload.
func verify(key Key, signed []byte) ([]byte, error) {
	if len(signed) < sigLength {
		return nil, fmt.Errorf("diskstore: signed payload too short (%d bytes)", len(signed))
	}
	split := len(signed) - sigLength
	payload, mac := signed[:split], signed[split:]
	h, err := blake2b.New256(key[:])
	if err != nil {
		return nil, fmt.Errorf("diskstore: verifying: %w", err)
	}
	h.Write(payload)
	want := h.Sum(nil)
	if subtle.ConstantTimeCompare(want, mac) != 1 {
		return nil, ErrBadSignature
	}
	return payload, nil
}

// ErrBadSignature is returned by LoadMetadata/LoadColumn when a
// persisted file's trailing MAC does not match FileStore's Key,
// indicating the file was corrupted or written with a different key.
var ErrBadSignature = fmt.Errorf("diskstore: signature verification failed")

// FileStore persists partition metadata and column sections under a
// directory on disk: one gob-encoded metadata.gob file listing every
// store.PartitionMetadata across all tables, and one zstd-compressed,
// gob-encoded blob per (table, partition, column). Every file is
// additionally signed with a keyed blake2b-256 MAC before it is written
// and verified on load. Codecs are not persisted: a column's sections are
// decoded to their logical buffer before StorePartition writes them, so
// LoadColumn always returns a single uncoded Section; re-encoding (for
// the dictionary/delta/bit-pack codecs in package buffer) happens again
// in memory once the column is resident, if the planner chooses to.
type FileStore struct {
	dir string
	key Key

	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewFileStore returns a FileStore rooted at dir, creating it if
// necessary. The signing key lives in dir/store.key: reopening the
// same directory reuses it, so files written by an earlier process
// still verify; a fresh directory gets a freshly generated random key.
// Use NewFileStoreWithKey to manage the key out of band instead.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskstore: creating %s: %w", dir, err)
	}
	keyPath := filepath.Join(dir, "store.key")
	var key Key
	raw, err := os.ReadFile(keyPath)
	switch {
	case err == nil:
		if len(raw) != KeyLength {
			return nil, fmt.Errorf("diskstore: %s holds %d bytes, want %d", keyPath, len(raw), KeyLength)
		}
		copy(key[:], raw)
	case os.IsNotExist(err):
		if _, err := rand.Read(key[:]); err != nil {
			return nil, fmt.Errorf("diskstore: generating signing key: %w", err)
		}
		if err := os.WriteFile(keyPath, key[:], 0o600); err != nil {
			return nil, fmt.Errorf("diskstore: writing %s: %w", keyPath, err)
		}
	default:
		return nil, fmt.Errorf("diskstore: reading %s: %w", keyPath, err)
	}
	return NewFileStoreWithKey(dir, key)
}

// NewFileStoreWithKey returns a FileStore rooted at dir, signing every
// file it writes with key and rejecting on load any file whose MAC does
// not match it.
func NewFileStoreWithKey(dir string, key Key) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskstore: creating %s: %w", dir, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("diskstore: zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("diskstore: zstd reader: %w", err)
	}
	return &FileStore{dir: dir, key: key, encoder: enc, decoder: dec}, nil
}

func (f *FileStore) metadataPath() string {
	return filepath.Join(f.dir, "metadata.gob")
}

func (f *FileStore) columnPath(table string, partitionID uint64, col string) string {
	return filepath.Join(f.dir, table, strconv.FormatUint(partitionID, 10), col+".zst")
}

// LoadMetadata reads every persisted PartitionMetadata. A missing
// metadata file (first run against an empty directory) is not an
// error; it yields an empty slice.
func (f *FileStore) LoadMetadata() ([]store.PartitionMetadata, error) {
	signed, err := os.ReadFile(f.metadataPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("diskstore: reading metadata: %w", err)
	}
	data, err := verify(f.key, signed)
	if err != nil {
		return nil, fmt.Errorf("diskstore: metadata: %w", err)
	}
	var out []store.PartitionMetadata
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return nil, fmt.Errorf("diskstore: decoding metadata: %w", err)
	}
	return out, nil
}

func (f *FileStore) appendMetadata(md store.PartitionMetadata) error {
	existing, err := f.LoadMetadata()
	if err != nil {
		return err
	}
	existing = append(existing, md)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(existing); err != nil {
		return fmt.Errorf("diskstore: encoding metadata: %w", err)
	}
	signed, err := sign(f.key, buf.Bytes())
	if err != nil {
		return fmt.Errorf("diskstore: metadata: %w", err)
	}
	return os.WriteFile(f.metadataPath(), signed, 0o644)
}

// StorePartition writes one file per column, each holding a
// zstd-compressed gob encoding of the column's decoded logical buffer,
// then appends the partition's metadata.
func (f *FileStore) StorePartition(id uint64, table string, columns []*store.Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	metas := make([]store.ColumnMeta, len(columns))
	length := 0
	for i, c := range columns {
		if err := f.writeColumn(table, id, c); err != nil {
			return err
		}
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
	return f.appendMetadata(store.PartitionMetadata{ID: id, TableName: table, Len: length, Columns: metas})
}

func (f *FileStore) writeColumn(table string, partitionID uint64, col *store.Column) error {
	decoded := decodeColumn(col)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(decoded); err != nil {
		return fmt.Errorf("diskstore: encoding column %q: %w", col.Name, err)
	}
	compressed := f.encoder.EncodeAll(buf.Bytes(), nil)
	signed, err := sign(f.key, compressed)
	if err != nil {
		return fmt.Errorf("diskstore: column %q: %w", col.Name, err)
	}

	path := f.columnPath(table, partitionID, col.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("diskstore: creating %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, signed, 0o644)
}

// LoadColumn reads and decompresses the column file for (table,
// partitionID, col), invoked by the store.DiskReadScheduler on a cache
// miss.
func (f *FileStore) LoadColumn(partitionID uint64, table, col string) (*store.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.columnPath(table, partitionID, col)
	signed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("diskstore: reading %s: %w", path, err)
	}
	compressed, err := verify(f.key, signed)
	if err != nil {
		return nil, fmt.Errorf("diskstore: %s: %w", path, err)
	}
	raw, err := f.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("diskstore: decompressing %s: %w", path, err)
	}
	var b buffer.Buffer
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&b); err != nil {
		return nil, fmt.Errorf("diskstore: decoding %s: %w", path, err)
	}
	return store.NewColumnFromBuffer(col, &b, distinctCount(&b)), nil
}

// decodeColumn flattens col's (possibly codec-compressed) sections into
// a single logical buffer suitable for persistence; see FileStore's doc
// comment for why codecs themselves are not persisted.
func decodeColumn(col *store.Column) *buffer.Buffer {
	if len(col.Sections) == 1 && col.Sections[0].Codec == nil {
		return col.Sections[0].Data
	}
	logical := col.EncodingType()
	out := buffer.New(logical, col.Len())
	for _, sec := range col.Sections {
		data := sec.Data
		if sec.Codec != nil {
			data = sec.Codec.Decode(data)
		}
		buffer.AppendAll(out, data)
	}
	return out
}

func distinctCount(b *buffer.Buffer) int {
	seen := map[string]struct{}{}
	for i := 0; i < b.Len; i++ {
		seen[b.RawValAt(i).String()] = struct{}{}
	}
	return len(seen)
}
