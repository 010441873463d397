package vector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/apperr"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// Strategy names a retrieval strategy.
type Strategy string

const (
	StrategySimilarity Strategy = "similarity"
	StrategyMMR        Strategy = "mmr"
	StrategyHybrid     Strategy = "hybrid"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategySimilarity, StrategyMMR, StrategyHybrid:
		return st, nil
	case "":
		return StrategyMMR, nil
	default:
		return "", fmt.Errorf("unknown retrieval strategy %q", s)
	}
}

// Collection is a handle to one owner's partition of the store. The name is the owner ID.
type Collection struct {
	Name string
}

// SearchOptions controls retrieval. QueryText is only used by the hybrid strategy.
type SearchOptions struct {
	K             int
	FetchK        int
	Lambda        float64
	Strategy      Strategy
	QueryText     string
	KeywordWeight float64
}

// DefaultSearchOptions returns MMR with k=4, fetch_k=20 and lambda=0.5.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{K: 4, FetchK: 20, Lambda: 0.5, Strategy: StrategyMMR, KeywordWeight: 0.3}
}

// KeywordSearcher finds chunks of an owner by full-text match.
type KeywordSearcher interface {
	Search(ctx context.Context, ownerID, text string, limit int) ([]models.KeywordHit, error)
}

// Manager is the vector index manager: it hands out collections, validates and batches writes,
// and runs the retrieval strategies over a Store.
type Manager struct {
	store      Store
	dimensions int
	keyword    KeywordSearcher
	logger     *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithKeywordSearcher enables the hybrid strategy.
func WithKeywordSearcher(k KeywordSearcher) Option {
	return func(m *Manager) { m.keyword = k }
}

// NewManager returns a manager over store for vectors of the given dimension.
func NewManager(store Store, dimensions int, opts ...Option) *Manager {
	m := &Manager{store: store, dimensions: dimensions}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = utils.LoggerOrNop(m.logger)
	return m
}

// Dimensions returns the vector dimension the manager accepts.
func (m *Manager) Dimensions() int { return m.dimensions }

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// GetOrCreateCollection returns the owner's collection, creating it on first use. Idempotent.
func (m *Manager) GetOrCreateCollection(ctx context.Context, ownerID string) (*Collection, error) {
	const op = "get or create collection"
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.Newf(apperr.KindClientInput, op, "owner id is required")
	}
	if err := m.store.EnsureCollection(ctx, ownerID); err != nil {
		return nil, apperr.New(apperr.KindIndexUnavailable, op, err)
	}
	return &Collection{Name: ownerID}, nil
}

// Add appends chunks to the collection in one batched write: all of them become searchable or
// none do. Every vector is validated before anything is written.
func (m *Manager) Add(ctx context.Context, c *Collection, chunks []models.EmbeddedChunk) error {
	const op = "index add"
	if len(chunks) == 0 {
		return nil
	}
	for i, ec := range chunks {
		if len(ec.Vector) != m.dimensions {
			return apperr.New(apperr.KindInternal, op,
				fmt.Errorf("%w: chunk %d has %d, expected %d", ErrDimensionMismatch, i, len(ec.Vector), m.dimensions))
		}
		if !ec.Chunk.Valid() {
			return apperr.Newf(apperr.KindInternal, op, "chunk %d has no text", i)
		}
	}
	if err := m.store.Add(ctx, c.Name, chunks); err != nil {
		return apperr.New(apperr.KindIndexUnavailable, op, err)
	}
	m.logger.Debug("added chunks", zap.String("collection", c.Name), zap.Int("count", len(chunks)))
	return nil
}

// Search retrieves up to opts.K chunks of the collection for the query vector.
func (m *Manager) Search(ctx context.Context, c *Collection, query []float32, opts SearchOptions) ([]models.ScoredChunk, error) {
	const op = "index search"
	if len(query) != m.dimensions {
		return nil, apperr.New(apperr.KindInternal, op,
			fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions))
	}
	if opts.K <= 0 {
		opts.K = 4
	}
	if opts.FetchK < opts.K {
		opts.FetchK = opts.K
	}
	if opts.Lambda < 0 || opts.Lambda > 1 {
		return nil, apperr.Newf(apperr.KindClientInput, op, "lambda must be in [0, 1], got %v", opts.Lambda)
	}

	var (
		picked []Candidate
		err    error
	)
	switch opts.Strategy {
	case StrategySimilarity:
		picked, err = m.store.Candidates(ctx, c.Name, query, opts.K)
	case StrategyMMR, "":
		picked, err = m.searchMMR(ctx, c, query, opts)
	case StrategyHybrid:
		picked, err = m.searchHybrid(ctx, c, query, opts)
	default:
		return nil, apperr.Newf(apperr.KindClientInput, op, "unknown strategy %q", opts.Strategy)
	}
	if err != nil {
		return nil, apperr.New(apperr.KindIndexUnavailable, op, err)
	}

	out := make([]models.ScoredChunk, len(picked))
	for i, p := range picked {
		out[i] = models.ScoredChunk{Chunk: p.Chunk, Score: p.Score}
	}
	return out, nil
}

func (m *Manager) searchMMR(ctx context.Context, c *Collection, query []float32, opts SearchOptions) ([]Candidate, error) {
	cands, err := m.store.Candidates(ctx, c.Name, query, opts.FetchK)
	if err != nil {
		return nil, err
	}
	rel := make([]float64, len(cands))
	for i := range cands {
		rel[i] = cands[i].Score
	}
	return MMR(cands, rel, opts.K, opts.Lambda), nil
}

// searchHybrid fuses min-max normalised cosine and keyword scores with weight opts.KeywordWeight
// on the keyword side, then runs MMR over the fused pool. Without a keyword searcher or query
// text it is plain MMR.
func (m *Manager) searchHybrid(ctx context.Context, c *Collection, query []float32, opts SearchOptions) ([]Candidate, error) {
	if m.keyword == nil || strings.TrimSpace(opts.QueryText) == "" {
		return m.searchMMR(ctx, c, query, opts)
	}
	vecCands, err := m.store.Candidates(ctx, c.Name, query, opts.FetchK)
	if err != nil {
		return nil, err
	}
	hits, err := m.keyword.Search(ctx, c.Name, opts.QueryText, opts.FetchK)
	if err != nil {
		m.logger.Warn("keyword search failed, using vector results only", zap.Error(err))
		hits = nil
	}

	pool := make([]Candidate, 0, len(vecCands)+len(hits))
	pos := make(map[string]int, len(vecCands)+len(hits))
	for _, vc := range vecCands {
		pos[vc.Chunk.ID] = len(pool)
		pool = append(pool, vc)
	}
	var missing []string
	for _, h := range hits {
		if _, ok := pos[h.ChunkID]; !ok {
			missing = append(missing, h.ChunkID)
		}
	}
	if len(missing) > 0 {
		extra, err := m.store.Get(ctx, c.Name, missing)
		if err != nil {
			return nil, err
		}
		for _, e := range extra {
			e.Score = Cosine(query, e.Vector)
			pos[e.Chunk.ID] = len(pool)
			pool = append(pool, e)
		}
	}

	vecScores := make([]float64, len(pool))
	for i := range pool {
		vecScores[i] = pool[i].Score
	}
	kwScores := make([]float64, len(pool))
	for _, h := range hits {
		if i, ok := pos[h.ChunkID]; ok {
			kwScores[i] = h.Score
		}
	}
	normalize(vecScores)
	normalize(kwScores)

	w := opts.KeywordWeight
	fused := make([]float64, len(pool))
	for i := range pool {
		fused[i] = (1-w)*vecScores[i] + w*kwScores[i]
	}
	return MMR(pool, fused, opts.K, opts.Lambda), nil
}

// normalize min-max scales scores to [0, 1] in place. A constant slice becomes all ones, or all
// zeros when the constant is zero.
func normalize(scores []float64) {
	if len(scores) == 0 {
		return
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	for i, s := range scores {
		switch {
		case hi > lo:
			scores[i] = (s - lo) / (hi - lo)
		case hi > 0:
			scores[i] = 1
		default:
			scores[i] = 0
		}
	}
}

// DeleteSource removes the chunks of one file from the collection.
func (m *Manager) DeleteSource(ctx context.Context, c *Collection, fileID string) (int, error) {
	n, err := m.store.DeleteSource(ctx, c.Name, fileID)
	if err != nil {
		return 0, apperr.New(apperr.KindIndexUnavailable, "index delete source", err)
	}
	return n, nil
}

// DropCollection removes an owner's collection and everything in it.
func (m *Manager) DropCollection(ctx context.Context, ownerID string) error {
	if err := m.store.DropCollection(ctx, ownerID); err != nil {
		return apperr.New(apperr.KindIndexUnavailable, "index drop collection", err)
	}
	return nil
}

// Stats reports collection and vector counts.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	s, err := m.store.Stats(ctx)
	if err != nil {
		return Stats{}, apperr.New(apperr.KindIndexUnavailable, "index stats", err)
	}
	return s, nil
}
