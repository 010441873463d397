package vector

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docuchat/internal/models"
)

func embedded(id, fileID string, index int, text string, vec ...float32) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		Vector: vec,
		Chunk: models.Chunk{
			ID:     id,
			Text:   text,
			Index:  index,
			Source: models.ChunkSource{Name: fileID + ".pdf", OwnerID: "u1", FileID: fileID},
		},
	}
}

// testStore runs the behaviour every Store must share.
func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "u1"))
	require.NoError(t, s.EnsureCollection(ctx, "u1"))
	require.NoError(t, s.EnsureCollection(ctx, "u2"))

	require.NoError(t, s.Add(ctx, "u1", []models.EmbeddedChunk{
		embedded("a", "f1", 0, "alpha", 1, 0, 0),
		embedded("b", "f1", 1, "beta", 0.9, 0.1, 0),
	}))
	require.NoError(t, s.Add(ctx, "u1", []models.EmbeddedChunk{
		embedded("c", "f2", 0, "gamma", 0, 1, 0),
		// duplicate id is skipped, never overwritten
		embedded("a", "f2", 5, "overwrite", 0, 0, 1),
	}))
	require.NoError(t, s.Add(ctx, "u2", []models.EmbeddedChunk{
		embedded("z", "f9", 0, "other owner", 1, 0, 0),
	}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Collections: 2, Vectors: 4}, st)

	cands, err := s.Candidates(ctx, "u1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "a", cands[0].Chunk.ID)
	assert.Equal(t, "alpha", cands[0].Chunk.Text)
	assert.Equal(t, "f1", cands[0].Chunk.Source.FileID)
	assert.InDelta(t, 1.0, cands[0].Score, 1e-5)
	assert.Equal(t, "b", cands[1].Chunk.ID)
	assert.Len(t, cands[0].Vector, 3)

	got, err := s.Get(ctx, "u1", []string{"c", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gamma", got[0].Chunk.Text)

	n, err := s.DeleteSource(ctx, "u1", "f1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	cands, err = s.Candidates(ctx, "u1", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "c", cands[0].Chunk.ID)

	require.NoError(t, s.DropCollection(ctx, "u1"))
	cands, err = s.Candidates(ctx, "u1", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, cands)
	cands, err = s.Candidates(ctx, "u2", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, cands, 1, "other collections are untouched")

	err = s.Add(ctx, "u2", []models.EmbeddedChunk{embedded("bad", "f9", 1, "x", 1, 0)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore(t *testing.T) {
	s, err := NewMemoryStore(3)
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "vectors.db"), 3)
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestPGVectorStore(t *testing.T) {
	dsn := os.Getenv("DOCUCHAT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("DOCUCHAT_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPGVectorStore(ctx, dsn, 3)
	require.NoError(t, err)
	defer s.Close()
	_ = s.DropCollection(ctx, "u1")
	_ = s.DropCollection(ctx, "u2")
	testStore(t, s)
	_ = s.DropCollection(ctx, "u2")
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap", "vectors.bin")
	s, _ := NewMemoryStore(2)
	require.NoError(t, s.EnsureCollection(ctx, "u1"))
	require.NoError(t, s.EnsureCollection(ctx, "empty"))
	require.NoError(t, s.Add(ctx, "u1", []models.EmbeddedChunk{
		embedded("a", "f1", 0, "alpha", 1, 0),
		embedded("b", "f1", 1, "beta", 0, 1),
	}))
	require.NoError(t, s.Save(path))

	loaded, _ := NewMemoryStore(2)
	require.NoError(t, loaded.Load(path))
	st, _ := loaded.Stats(ctx)
	assert.Equal(t, Stats{Collections: 2, Vectors: 2}, st)
	cands, err := loaded.Candidates(ctx, "u1", []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "beta", cands[0].Chunk.Text)
	assert.Equal(t, "f1", cands[0].Chunk.Source.FileID)

	wrongDim, _ := NewMemoryStore(3)
	assert.ErrorIs(t, wrongDim.Load(path), ErrDimensionMismatch)

	missing, _ := NewMemoryStore(2)
	assert.NoError(t, missing.Load(filepath.Join(t.TempDir(), "nope.bin")))
}

func TestMemoryStore_concurrentAdd(t *testing.T) {
	ctx := context.Background()
	s, _ := NewMemoryStore(2)
	require.NoError(t, s.EnsureCollection(ctx, "u1"))
	done := make(chan error)
	for i := 0; i < 10; i++ {
		go func(i int) {
			id := strconv.Itoa(i)
			done <- s.Add(ctx, "u1", []models.EmbeddedChunk{
				embedded(id+"-0", "f"+id, 0, "x", 1, 0),
				embedded(id+"-1", "f"+id, 1, "y", 0, 1),
			})
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}
	st, _ := s.Stats(ctx)
	assert.Equal(t, 20, st.Vectors)
}
