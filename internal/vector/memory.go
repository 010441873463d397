package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/docuchat/internal/models"
)

const snapshotMagic = "DCVS1"

// MemoryStore keeps collections in memory with brute-force cosine search. Suitable for tests,
// single-process deployments and small corpora; Save and Load give it a snapshot on disk.
type MemoryStore struct {
	dimensions  int
	collections map[string]*memCollection
	mu          sync.RWMutex
}

type memCollection struct {
	ids     map[string]struct{}
	entries []memEntry
}

type memEntry struct {
	chunk  models.Chunk
	vector []float32
}

// NewMemoryStore creates an empty in-memory store for vectors of the given dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{dimensions: dimensions, collections: make(map[string]*memCollection)}, nil
}

func newMemCollection() *memCollection {
	return &memCollection{ids: make(map[string]struct{})}
}

// EnsureCollection implements Store.
func (m *MemoryStore) EnsureCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = newMemCollection()
	}
	return nil
}

// Add implements Store. Vectors are validated before the collection is touched.
func (m *MemoryStore) Add(_ context.Context, collection string, chunks []models.EmbeddedChunk) error {
	for i, ec := range chunks {
		if len(ec.Vector) != m.dimensions {
			return fmt.Errorf("%w: chunk %d has %d, expected %d", ErrDimensionMismatch, i, len(ec.Vector), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	for _, ec := range chunks {
		if _, dup := c.ids[ec.Chunk.ID]; dup {
			continue
		}
		vec := make([]float32, len(ec.Vector))
		copy(vec, ec.Vector)
		c.ids[ec.Chunk.ID] = struct{}{}
		c.entries = append(c.entries, memEntry{chunk: ec.Chunk, vector: vec})
	}
	return nil
}

// Candidates implements Store.
func (m *MemoryStore) Candidates(_ context.Context, collection string, query []float32, n int) ([]Candidate, error) {
	m.mu.RLock()
	c, ok := m.collections[collection]
	if !ok {
		m.mu.RUnlock()
		return nil, nil
	}
	cands := make([]Candidate, len(c.entries))
	for i, e := range c.entries {
		cands[i] = Candidate{Chunk: e.chunk, Vector: e.vector}
	}
	m.mu.RUnlock()
	return topByCosine(cands, query, n), nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, collection string, ids []string) ([]Candidate, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	var out []Candidate
	for _, e := range c.entries {
		if want[e.chunk.ID] {
			out = append(out, Candidate{Chunk: e.chunk, Vector: e.vector})
		}
	}
	return out, nil
}

// DeleteSource implements Store.
func (m *MemoryStore) DeleteSource(_ context.Context, collection, fileID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	kept := c.entries[:0]
	removed := 0
	for _, e := range c.entries {
		if e.chunk.Source.FileID == fileID {
			delete(c.ids, e.chunk.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
	return removed, nil
}

// DropCollection implements Store.
func (m *MemoryStore) DropCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Collections: len(m.collections)}
	for _, c := range m.collections {
		s.Vectors += len(c.entries)
	}
	return s, nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

// Save writes a snapshot to path. Directory is created if needed. Format: magic, dimension (4),
// collection count (4), then per collection: name, entry count (4), and per entry the chunk as
// JSON followed by dimension*4 bytes of vector. Strings and JSON are length-prefixed (4).
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.writeSnapshot(w); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryStore) writeSnapshot(w io.Writer) error {
	le := binary.LittleEndian
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, le, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := binary.Write(w, le, uint32(len(names))); err != nil {
		return fmt.Errorf("write collection count: %w", err)
	}
	for _, name := range names {
		c := m.collections[name]
		if err := writeBlock(w, []byte(name)); err != nil {
			return fmt.Errorf("write collection name: %w", err)
		}
		if err := binary.Write(w, le, uint32(len(c.entries))); err != nil {
			return fmt.Errorf("write entry count: %w", err)
		}
		for _, e := range c.entries {
			meta, err := json.Marshal(e.chunk)
			if err != nil {
				return fmt.Errorf("encode chunk: %w", err)
			}
			if err := writeBlock(w, meta); err != nil {
				return fmt.Errorf("write chunk: %w", err)
			}
			if _, err := w.Write(float32SliceToBytes(e.vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	return nil
}

// Load replaces the store contents with the snapshot at path. Dimensions must match. A missing
// file leaves the store unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	le := binary.LittleEndian

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != snapshotMagic {
		return fmt.Errorf("not a vector snapshot: %s", path)
	}
	var dim, nColl uint32
	if err := binary.Read(r, le, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("%w: snapshot has %d, store expects %d", ErrDimensionMismatch, dim, m.dimensions)
	}
	if err := binary.Read(r, le, &nColl); err != nil {
		return fmt.Errorf("read collection count: %w", err)
	}
	collections := make(map[string]*memCollection, nColl)
	vecBuf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < nColl; i++ {
		name, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("read collection name: %w", err)
		}
		var n uint32
		if err := binary.Read(r, le, &n); err != nil {
			return fmt.Errorf("read entry count: %w", err)
		}
		c := newMemCollection()
		for j := uint32(0); j < n; j++ {
			meta, err := readBlock(r)
			if err != nil {
				return fmt.Errorf("read chunk: %w", err)
			}
			var chunk models.Chunk
			if err := json.Unmarshal(meta, &chunk); err != nil {
				return fmt.Errorf("decode chunk: %w", err)
			}
			if _, err := io.ReadFull(r, vecBuf); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			c.ids[chunk.ID] = struct{}{}
			c.entries = append(c.entries, memEntry{chunk: chunk, vector: bytesToFloat32Slice(vecBuf)})
		}
		collections[string(name)] = c
	}

	m.mu.Lock()
	m.collections = collections
	m.mu.Unlock()
	return nil
}

func writeBlock(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlock(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
