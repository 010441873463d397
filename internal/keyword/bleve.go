package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// deletePage is how many matching documents are removed per batch.
const deletePage = 500

// BleveIndex is a Bleve index of chunks. Every query is restricted to one owner.
type BleveIndex struct {
	index     bleve.Index
	fuzziness int
	logger    *zap.Logger
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *BleveIndex) { b.logger = l }
}

// WithFuzziness enables fuzzy term matching within the given edit distance (1 or 2).
func WithFuzziness(n int) Option {
	return func(b *BleveIndex) { b.fuzziness = n }
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is reopened so chunks
// indexed by earlier runs stay searchable. An empty path gives an in-memory index.
func NewBleveIndex(path string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{}
	for _, o := range opts {
		o(b)
	}
	b.logger = utils.LoggerOrNop(b.logger)

	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		b.index = index
		return b, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return b, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// Index adds chunks in one batch. Re-indexing a chunk id replaces its document.
func (b *BleveIndex) Index(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, chunkDocument(c)); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	b.logger.Debug("indexed chunks", zap.Int("count", len(chunks)))
	return nil
}

// Search runs a match query over the owner's chunks and returns up to limit hits by descending
// score.
func (b *BleveIndex) Search(ctx context.Context, ownerID, text string, limit int) ([]models.KeywordHit, error) {
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(ownerQuery(ownerID), b.textQuery(text)))
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.KeywordHit, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = models.KeywordHit{ChunkID: h.ID, Score: h.Score}
	}
	return out, nil
}

// textQuery matches any term of text. With fuzziness set each term is a fuzzy query instead.
func (b *BleveIndex) textQuery(text string) blevequery.Query {
	if b.fuzziness <= 0 {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(fieldText)
		return mq
	}
	terms := strings.Fields(strings.ToLower(text))
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(b.fuzziness)
		fq.SetField(fieldText)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func ownerQuery(ownerID string) blevequery.Query {
	q := bleve.NewTermQuery(ownerID)
	q.SetField(fieldOwner)
	return q
}

// DeleteSource removes every chunk of one file of the owner and reports how many were removed.
func (b *BleveIndex) DeleteSource(ctx context.Context, ownerID, fileID string) (int, error) {
	fq := bleve.NewTermQuery(fileID)
	fq.SetField(fieldFile)
	return b.deleteMatching(ctx, bleve.NewConjunctionQuery(ownerQuery(ownerID), fq))
}

// DeleteOwner removes every chunk of the owner.
func (b *BleveIndex) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	return b.deleteMatching(ctx, ownerQuery(ownerID))
}

func (b *BleveIndex) deleteMatching(ctx context.Context, q blevequery.Query) (int, error) {
	removed := 0
	for {
		req := bleve.NewSearchRequest(q)
		req.Size = deletePage
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return removed, fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(res.Hits) == 0 {
			return removed, nil
		}
		batch := b.index.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return removed, fmt.Errorf("Bleve delete failed: %w", err)
		}
		removed += len(res.Hits)
	}
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
