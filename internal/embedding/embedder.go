// Package embedding provides the text embedding capability: an OpenAI-compatible client, a local
// ONNX model, a deterministic mock, and an LRU cache in front of any of them.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyResult is returned when a provider answers with fewer vectors than texts.
var ErrEmptyResult = errors.New("embedder returned no vectors")

// Embedder produces vector embeddings for text. Implementations are safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
