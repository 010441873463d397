// Package ingest turns uploads into searchable chunks: it extracts, chunks, embeds and indexes
// a document, then stores the raw upload and its catalog record.
package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/hyperjump/docuchat/internal/fileid"
	"github.com/hyperjump/docuchat/internal/models"
)

// Default chunk sizes, in runes.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 0
)

var separators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text recursively on paragraph, line, word and character boundaries.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a chunker with the given size and overlap in runes.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// Chunk splits text into chunks of doc. The same input always gives the same chunks: indices
// follow document order and chunk ids derive from the document id and index. Blank pieces are
// dropped before indices are assigned.
func (c *Chunker) Chunk(doc *models.Document, text string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, models.Chunk{
			ID:    fileid.ChunkID(doc.ID, idx),
			Text:  p,
			Index: idx,
			Source: models.ChunkSource{
				Name:    doc.Filename,
				OwnerID: doc.OwnerID,
				FileID:  doc.ID,
			},
		})
	}
	return chunks, nil
}
