package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docuchat/internal/models"
)

func chunk(id, owner, file, text string) models.Chunk {
	return models.Chunk{
		ID:     id,
		Text:   text,
		Source: models.ChunkSource{Name: file + ".pdf", OwnerID: owner, FileID: file},
	}
}

func newIndex(t *testing.T, opts ...Option) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"), opts...)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsText(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	err := idx.Index(ctx, []models.Chunk{
		chunk("c1", "u1", "f1", "Invoice INV-7 total due 42 EUR"),
		chunk("c2", "u1", "f1", "Payment terms are thirty days"),
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	hits, err := idx.Search(ctx, "u1", "invoice", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "c1" {
		t.Fatalf("hits = %+v, want c1 only", hits)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %v, want > 0", hits[0].Score)
	}
}

func TestBleveIndex_SearchIsolatesOwners(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, []models.Chunk{
		chunk("a", "alice", "f1", "quarterly revenue report"),
		chunk("b", "bob", "f2", "quarterly revenue report"),
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	hits, err := idx.Search(ctx, "alice", "revenue", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "a" {
		t.Errorf("alice sees %+v, want only chunk a", hits)
	}
}

func TestBleveIndex_SearchEmptyQuery(t *testing.T) {
	idx := newIndex(t)
	hits, err := idx.Search(context.Background(), "u1", "   ", 10)
	if err != nil || hits != nil {
		t.Errorf("Search blank = %v, %v; want nil, nil", hits, err)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newIndex(t, WithFuzziness(1))
	ctx := context.Background()
	if err := idx.Index(ctx, []models.Chunk{chunk("c1", "u1", "f1", "the currency is euros")}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	hits, err := idx.Search(ctx, "u1", "curency", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("fuzzy search got %d hits, want 1", len(hits))
	}
}

func TestBleveIndex_DeleteSourceAndOwner(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, []models.Chunk{
		chunk("a1", "u1", "f1", "alpha"),
		chunk("a2", "u1", "f1", "alpha again"),
		chunk("b1", "u1", "f2", "alpha elsewhere"),
		chunk("c1", "u2", "f1", "alpha other owner"),
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	n, err := idx.DeleteSource(ctx, "u1", "f1")
	if err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteSource removed %d, want 2", n)
	}
	hits, _ := idx.Search(ctx, "u1", "alpha", 10)
	if len(hits) != 1 || hits[0].ChunkID != "b1" {
		t.Errorf("after DeleteSource hits = %+v, want b1", hits)
	}

	n, err = idx.DeleteOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteOwner: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteOwner removed %d, want 1", n)
	}
	count, err := idx.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1 (other owner untouched)", count)
	}
}

func TestBleveIndex_ReopenKeepsChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	idx1, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	ctx := context.Background()
	if err := idx1.Index(ctx, []models.Chunk{chunk("c1", "u1", "f1", "uniqueword")}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex (reopen): %v", err)
	}
	defer func() { _ = idx2.Close() }()
	hits, err := idx2.Search(ctx, "u1", "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("after reopen got %d hits, want 1", len(hits))
	}
}

func TestNewBleveIndex_createsDir(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "sub", "bleve")
	idx, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	_ = idx.Close()
	if _, err := os.Stat(indexPath); err != nil {
		t.Errorf("index path should exist: %v", err)
	}
}

func TestNewBleveIndex_memOnly(t *testing.T) {
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	defer func() { _ = idx.Close() }()
	if err := idx.Index(context.Background(), []models.Chunk{chunk("c1", "u1", "f1", "hello")}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n, _ := idx.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
