// Package app wires the docuchat components from configuration. The CLI and end-to-end tests
// build a Components once and pass it around explicitly.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/blob"
	"github.com/hyperjump/docuchat/internal/catalog"
	"github.com/hyperjump/docuchat/internal/config"
	"github.com/hyperjump/docuchat/internal/embedding"
	"github.com/hyperjump/docuchat/internal/extract"
	"github.com/hyperjump/docuchat/internal/generation"
	"github.com/hyperjump/docuchat/internal/ingest"
	"github.com/hyperjump/docuchat/internal/keyword"
	"github.com/hyperjump/docuchat/internal/rag"
	"github.com/hyperjump/docuchat/internal/server"
	"github.com/hyperjump/docuchat/internal/session"
	"github.com/hyperjump/docuchat/internal/vector"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// Components holds initialized services.
type Components struct {
	Config       *config.Config
	Catalog      *catalog.SQLiteCatalog
	Blobs        *blob.AFSStore
	Embedder     embedding.Embedder
	Generator    generation.Generator
	VectorStore  vector.Store
	Vectors      *vector.Manager
	KeywordIndex *keyword.BleveIndex
	Sessions     *session.Store
	Extractor    *extract.Extractor
	Pipeline     *ingest.Pipeline
	Executor     *rag.Executor

	logger *zap.Logger
}

// Option overrides a component Build would otherwise construct from configuration.
type Option func(*overrides)

type overrides struct {
	embedder  embedding.Embedder
	generator generation.Generator
	extractor []extract.Option
}

// WithEmbedder uses e instead of the configured embedding provider.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *overrides) { o.embedder = e }
}

// WithGenerator uses g instead of the OpenAI-compatible chat model.
func WithGenerator(g generation.Generator) Option {
	return func(o *overrides) { o.generator = g }
}

// WithExtractorOptions appends options to the extractor built from configuration, e.g. to swap
// the OCR engine.
func WithExtractorOptions(opts ...extract.Option) Option {
	return func(o *overrides) { o.extractor = append(o.extractor, opts...) }
}

// Build initializes every component from cfg. On error the components created so far are closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (_ *Components, err error) {
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}
	logger = utils.LoggerOrNop(logger)
	c := &Components{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Catalog, err = catalog.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	c.Blobs, err = blob.NewAFSStore(cfg.Storage.BlobURL,
		blob.WithLogger(logger), blob.WithPublicBaseURL(cfg.Storage.PublicBaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	c.Embedder = o.embedder
	if c.Embedder == nil {
		c.Embedder, err = embedding.New(cfg.Embedding, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}
	c.Generator = o.generator
	if c.Generator == nil {
		c.Generator, err = generation.NewOpenAIGenerator(cfg.Generation, generation.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
	}

	c.VectorStore, err = vector.NewStore(ctx, cfg.Vector, c.Embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	managerOpts := []vector.Option{vector.WithLogger(logger)}
	if cfg.Keyword.Enabled {
		c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Keyword.IndexPath, keyword.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		managerOpts = append(managerOpts, vector.WithKeywordSearcher(c.KeywordIndex))
	}
	c.Vectors = vector.NewManager(c.VectorStore, c.Embedder.Dimensions(), managerOpts...)
	logger.Info("vector index initialized",
		zap.String("backend", cfg.Vector.Backend),
		zap.Int("dimensions", c.Embedder.Dimensions()),
		zap.Bool("keyword", cfg.Keyword.Enabled))

	c.Extractor, err = newExtractor(cfg, c.Catalog, logger, o.extractor)
	if err != nil {
		return nil, err
	}
	chunker, err := ingest.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	pipeOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithPoolSize(cfg.Embedding.Workers),
		ingest.WithBatchSize(cfg.Embedding.BatchSize),
		ingest.WithScratchRoot(cfg.Extraction.ScratchDir),
		ingest.WithTimeouts(cfg.Pipeline.ExtractTimeout, cfg.Pipeline.EmbedTimeout),
	}
	if c.KeywordIndex != nil {
		pipeOpts = append(pipeOpts, ingest.WithKeywordIndex(c.KeywordIndex))
	}
	c.Pipeline, err = ingest.NewPipeline(c.Extractor, chunker, c.Embedder, c.Vectors, c.Blobs, c.Catalog, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ingestion pipeline: %w", err)
	}

	strategy, err := vector.ParseStrategy(cfg.Retrieval.Strategy)
	if err != nil {
		return nil, err
	}
	if strategy == vector.StrategyHybrid && c.KeywordIndex == nil {
		return nil, errors.New("retrieval.strategy hybrid requires keyword.enabled")
	}
	c.Sessions = session.NewStore(
		session.WithLogger(logger),
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithIdleTTL(cfg.Session.IdleTTL))
	c.Executor = rag.NewExecutor(c.Vectors, c.Embedder, c.Generator, c.Sessions,
		rag.WithLogger(logger),
		rag.WithSearchOptions(vector.SearchOptions{
			K:             cfg.Retrieval.K,
			FetchK:        cfg.Retrieval.FetchK,
			Lambda:        cfg.Retrieval.Lambda,
			Strategy:      strategy,
			KeywordWeight: cfg.Retrieval.KeywordWeight,
		}),
		rag.WithSystemPrompt(cfg.Generation.SystemPrompt),
		rag.WithHistoryTurns(cfg.Session.HistoryTurns),
		rag.WithCondenseQuestion(cfg.Generation.CondenseQuestionOrDefault()),
		rag.WithTimeouts(cfg.Pipeline.EmbedTimeout, cfg.Pipeline.GenerateTimeout))
	return c, nil
}

func newExtractor(cfg *config.Config, rec extract.FailureRecorder, logger *zap.Logger, extra []extract.Option) (*extract.Extractor, error) {
	formats, err := extract.ParseFormats(cfg.Extraction.Formats)
	if err != nil {
		return nil, err
	}
	ex := cfg.Extraction
	opts := []extract.Option{
		extract.WithLogger(logger),
		extract.WithFormats(formats...),
		extract.WithMinTextChars(ex.MinTextChars),
		extract.WithOCR(extract.NewTesseractOCR(ex.TesseractPath, ex.TesseractLang)),
		extract.WithRasterizer(extract.NewPdftoppmRasterizer(ex.PdftoppmPath, ex.DPI)),
		extract.WithAudioExtractor(extract.NewFFmpegAudioExtractor(ex.FFmpegPath)),
		extract.WithSpeechToText(extract.NewWhisperSTT(ex.STTHost, ex.STTModel, ex.STTAPIKey)),
		extract.WithFailureRecorder(rec),
	}
	return extract.NewExtractor(append(opts, extra...)...), nil
}

// ServerDeps returns the HTTP handler dependencies.
func (c *Components) ServerDeps() server.Deps {
	return server.Deps{
		Documents: c.Pipeline,
		Chat:      c.Executor,
		Blobs:     c.Blobs,
		Catalog:   c.Catalog,
		Vectors:   c.Vectors,
		Sessions:  c.Sessions,
	}
}

// Close saves the in-memory vector snapshot when configured and releases every component.
func (c *Components) Close() {
	if m, ok := c.VectorStore.(*vector.MemoryStore); ok && c.Config.Vector.SnapshotPath != "" {
		if err := m.Save(c.Config.Vector.SnapshotPath); err != nil {
			c.logger.Warn("vector snapshot save failed", zap.String("path", c.Config.Vector.SnapshotPath), zap.Error(err))
		}
	}
	if c.Pipeline != nil {
		c.Pipeline.Release()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.VectorStore != nil {
		_ = c.VectorStore.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}
