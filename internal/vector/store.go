// Package vector manages per-owner collections of embedded chunks and retrieves from them by
// cosine similarity, maximal marginal relevance, or a hybrid of vector and keyword scores.
package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"math"

	"github.com/hyperjump/docuchat/internal/models"
)

// ErrDimensionMismatch is returned when a vector does not have the collection dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Candidate is a stored chunk with its vector. Score is the cosine similarity to the query that
// produced it, or zero when fetched by ID.
type Candidate struct {
	Chunk  models.Chunk
	Vector []float32
	Score  float64
}

// Stats summarises a store.
type Stats struct {
	Collections int `json:"collections"`
	Vectors     int `json:"vectors"`
}

// Store persists collections. Implementations are safe for concurrent use.
type Store interface {
	// EnsureCollection creates the named collection if it does not exist.
	EnsureCollection(ctx context.Context, name string) error
	// Add writes all chunks to the collection or none of them. Chunks whose ID already exists in
	// the collection are skipped, never overwritten.
	Add(ctx context.Context, collection string, chunks []models.EmbeddedChunk) error
	// Candidates returns up to n chunks of the collection ordered by cosine similarity to query.
	Candidates(ctx context.Context, collection string, query []float32, n int) ([]Candidate, error)
	// Get returns the chunks with the given IDs; unknown IDs are skipped.
	Get(ctx context.Context, collection string, ids []string) ([]Candidate, error)
	// DeleteSource removes every chunk of a file and returns how many were removed.
	DeleteSource(ctx context.Context, collection, fileID string) (int, error)
	// DropCollection removes a collection and its chunks.
	DropCollection(ctx context.Context, name string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size:]))
	}
	return out
}
