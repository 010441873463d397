package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/apperr"
	"github.com/hyperjump/docuchat/internal/blob"
	"github.com/hyperjump/docuchat/internal/catalog"
	"github.com/hyperjump/docuchat/internal/embedding"
	"github.com/hyperjump/docuchat/internal/extract"
	"github.com/hyperjump/docuchat/internal/fileid"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/internal/vector"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// Warning reported for uploads that are stored but have no searchable text.
const WarningNoText = "no text could be extracted; the file is stored but not searchable"

// Extractor is the extraction capability the pipeline needs.
type Extractor interface {
	Detect(contentType, filename string) (models.Format, error)
	Extract(ctx context.Context, doc *models.Document) (string, error)
}

// KeywordIndex mirrors chunks into a full-text index.
type KeywordIndex interface {
	Index(ctx context.Context, chunks []models.Chunk) error
	DeleteSource(ctx context.Context, ownerID, fileID string) (int, error)
	DeleteOwner(ctx context.Context, ownerID string) (int, error)
}

// Upload is one file handed to Ingest.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Result describes an accepted upload.
type Result struct {
	File       *models.FileRecord
	Chunks     int
	Searchable bool
	Warning    string
}

// Pipeline ingests uploads. It is safe for concurrent use.
type Pipeline struct {
	extractor Extractor
	chunker   *Chunker
	embedder  embedding.Embedder
	index     *vector.Manager
	keyword   KeywordIndex
	blobs     blob.Store
	catalog   catalog.Catalog

	pool           *ants.Pool
	batchSize      int
	scratchRoot    string
	extractTimeout time.Duration
	embedTimeout   time.Duration
	logger         *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = l
		return nil
	}
}

// WithKeywordIndex mirrors ingested chunks into k.
func WithKeywordIndex(k KeywordIndex) Option {
	return func(p *Pipeline) error {
		p.keyword = k
		return nil
	}
}

// WithPoolSize sets how many embedding batches run concurrently across all ingestions.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets how many chunks go to the embedder per call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n > 0 {
			p.batchSize = n
		}
		return nil
	}
}

// WithScratchRoot sets where per-ingestion scratch directories are created.
func WithScratchRoot(dir string) Option {
	return func(p *Pipeline) error {
		p.scratchRoot = dir
		return nil
	}
}

// WithTimeouts bounds extraction and embedding of one document. Zero means no deadline.
func WithTimeouts(extract, embed time.Duration) Option {
	return func(p *Pipeline) error {
		p.extractTimeout = extract
		p.embedTimeout = embed
		return nil
	}
}

// NewPipeline creates a pipeline. Call Release when done.
func NewPipeline(
	ex Extractor,
	chunker *Chunker,
	embedder embedding.Embedder,
	index *vector.Manager,
	blobs blob.Store,
	cat catalog.Catalog,
	opts ...Option,
) (*Pipeline, error) {
	if ex == nil || chunker == nil || embedder == nil || index == nil || blobs == nil || cat == nil {
		return nil, errors.New("ingest: all pipeline dependencies are required")
	}
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		extractor: ex,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		blobs:     blobs,
		catalog:   cat,
		pool:      pool,
		batchSize: 64,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	p.logger = utils.LoggerOrNop(p.logger)
	return p, nil
}

// Release frees the worker pool. The pipeline must not be used afterwards.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Ingest makes an upload searchable for ownerID. Either every chunk of the document is indexed
// or none is. A document without usable text is still stored, flagged as not searchable.
func (p *Pipeline) Ingest(ctx context.Context, ownerID string, up Upload) (*Result, error) {
	ownerID, err := fileid.CleanOwner(ownerID)
	if err != nil {
		return nil, apperr.New(apperr.KindClientInput, "ingest", err)
	}
	name := fileid.CleanName(up.Filename)
	if name == "" {
		return nil, apperr.Newf(apperr.KindClientInput, "ingest", "a file name is required")
	}
	if up.Body == nil {
		return nil, apperr.Newf(apperr.KindClientInput, "ingest", "file content is required")
	}
	format, err := p.extractor.Detect(up.ContentType, name)
	if err != nil {
		return nil, err
	}
	contentType := up.ContentType
	if ct := strings.TrimSpace(contentType); ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		contentType = extract.ContentTypeForName(name)
	}

	scratch, err := NewScratch(p.scratchRoot)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "ingest", err)
	}
	defer func() {
		if err := scratch.Close(); err != nil {
			p.logger.Warn("failed to remove scratch dir", zap.String("dir", scratch.Dir), zap.Error(err))
		}
	}()
	path, size, err := scratch.Write("upload"+strings.ToLower(filepath.Ext(name)), up.Body)
	if err != nil {
		if errors.Is(err, ErrReadUpload) {
			return nil, apperr.New(apperr.KindClientInput, "read upload", err)
		}
		return nil, apperr.New(apperr.KindInternal, "write upload", err)
	}

	doc := &models.Document{
		ID:          fileid.New(),
		OwnerID:     ownerID,
		Filename:    name,
		ContentType: contentType,
		Format:      format,
		Path:        path,
	}
	log := p.logger.With(
		zap.String("owner_id", ownerID),
		zap.String("filename", name),
		zap.String("file_id", doc.ID))
	log.Debug("ingesting", zap.String("format", string(format)), zap.Int64("bytes", size))

	text, err := p.extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	chunks, err := p.chunker.Chunk(doc, Preprocess(text))
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "chunk", err)
	}

	res := &Result{Chunks: len(chunks), Searchable: len(chunks) > 0}
	if len(chunks) == 0 {
		res.Warning = WarningNoText
		log.Warn("no text extracted, storing without indexing")
	} else if err := p.indexChunks(ctx, ownerID, chunks); err != nil {
		return nil, err
	}

	rec, err := p.store(ctx, doc, res.Searchable)
	if err != nil {
		if res.Searchable {
			p.recordOrphans(ctx, doc, len(chunks), err)
		}
		return nil, err
	}
	res.File = rec
	log.Info("ingested", zap.Int("chunks", len(chunks)), zap.Bool("searchable", res.Searchable))
	return res, nil
}

func (p *Pipeline) extract(ctx context.Context, doc *models.Document) (string, error) {
	if p.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.extractTimeout)
		defer cancel()
	}
	text, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return "", apperr.New(apperr.KindExtraction, "extract", err)
	}
	return text, nil
}

// indexChunks embeds every chunk once and adds them all to the owner's collection in one call.
func (p *Pipeline) indexChunks(ctx context.Context, ownerID string, chunks []models.Chunk) error {
	coll, err := p.index.GetOrCreateCollection(ctx, ownerID)
	if err != nil {
		return err
	}
	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return apperr.New(apperr.KindIndexUnavailable, "embed", err)
	}
	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		embedded[i] = models.EmbeddedChunk{Vector: vectors[i], Chunk: c}
	}
	if err := p.index.Add(ctx, coll, embedded); err != nil {
		return err
	}
	if p.keyword != nil {
		if err := p.keyword.Index(ctx, chunks); err != nil {
			p.logger.Warn("keyword indexing failed", zap.String("owner_id", ownerID), zap.Error(err))
		}
	}
	return nil
}

// embed splits chunks into batches that run on the shared pool. The first failure cancels the
// remaining batches.
func (p *Pipeline) embed(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	if p.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.embedTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(chunks))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		start := start
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}
			vecs, err := p.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				fail(err)
				return
			}
			if len(vecs) != len(texts) {
				fail(fmt.Errorf("%w: got %d vectors for %d chunks", embedding.ErrEmptyResult, len(vecs), len(texts)))
				return
			}
			copy(vectors[start:], vecs)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// store writes the blob and then the catalog row.
func (p *Pipeline) store(ctx context.Context, doc *models.Document, searchable bool) (*models.FileRecord, error) {
	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, apperr.New(apperr.KindStorage, "store blob", err)
	}
	defer f.Close()
	url, err := p.blobs.Put(ctx, doc.OwnerID, doc.Filename, f)
	if err != nil {
		return nil, apperr.New(apperr.KindStorage, "store blob", err)
	}

	if err := p.catalog.EnsureUser(ctx, models.UserRecord{ID: doc.OwnerID}); err != nil {
		return nil, apperr.New(apperr.KindStorage, "store file record", err)
	}
	rec := &models.FileRecord{
		ID:         doc.ID,
		OwnerID:    doc.OwnerID,
		URL:        url,
		Name:       doc.Filename,
		Type:       doc.ContentType,
		Searchable: searchable,
	}
	if err := p.catalog.CreateFile(ctx, rec); err != nil {
		return nil, apperr.New(apperr.KindStorage, "store file record", err)
	}
	return rec, nil
}

// recordOrphans flags vectors that were indexed for a document whose storage step then failed.
// They stay searchable until reconciled.
func (p *Pipeline) recordOrphans(ctx context.Context, doc *models.Document, chunks int, cause error) {
	p.logger.Error("vectors indexed without a stored file",
		zap.String("owner_id", doc.OwnerID),
		zap.String("filename", doc.Filename),
		zap.String("file_id", doc.ID),
		zap.Int("chunks", chunks),
		zap.Error(cause))
	ev := models.AuditEvent{
		OwnerID:  doc.OwnerID,
		Filename: doc.Filename,
		Stage:    models.StageOrphanedVectors,
		Reason:   fmt.Sprintf("file_id=%s chunks=%d: %v", doc.ID, chunks, cause),
	}
	if err := p.catalog.RecordAudit(context.WithoutCancel(ctx), ev); err != nil {
		p.logger.Error("failed to record orphaned vectors", zap.String("file_id", doc.ID), zap.Error(err))
	}
}

// Remove deletes every file named filename of the owner: its vectors, keyword entries, blob
// and catalog rows.
func (p *Pipeline) Remove(ctx context.Context, ownerID, filename string) error {
	const op = "remove file"
	ownerID, err := fileid.CleanOwner(ownerID)
	if err != nil {
		return apperr.New(apperr.KindClientInput, op, err)
	}
	name := fileid.CleanName(filename)
	if name == "" {
		return apperr.Newf(apperr.KindClientInput, op, "filename is required")
	}
	recs, err := p.catalog.FilesByName(ctx, ownerID, name)
	if err != nil {
		return apperr.New(apperr.KindStorage, op, err)
	}
	if len(recs) == 0 {
		return apperr.Newf(apperr.KindNotFound, op, "file %q not found", name)
	}
	coll := &vector.Collection{Name: ownerID}
	for _, rec := range recs {
		if rec.Searchable {
			if _, err := p.index.DeleteSource(ctx, coll, rec.ID); err != nil {
				return err
			}
		}
		if p.keyword != nil {
			if _, err := p.keyword.DeleteSource(ctx, ownerID, rec.ID); err != nil {
				p.logger.Warn("keyword delete failed", zap.String("file_id", rec.ID), zap.Error(err))
			}
		}
	}
	if err := p.blobs.Delete(ctx, ownerID, name); err != nil {
		return apperr.New(apperr.KindStorage, op, err)
	}
	for _, rec := range recs {
		if err := p.catalog.DeleteFile(ctx, ownerID, rec.ID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return apperr.New(apperr.KindStorage, op, err)
		}
	}
	p.logger.Info("removed file", zap.String("owner_id", ownerID), zap.String("filename", name), zap.Int("records", len(recs)))
	return nil
}

// RemoveAll deletes everything stored for the owner.
func (p *Pipeline) RemoveAll(ctx context.Context, ownerID string) error {
	const op = "remove all files"
	ownerID, err := fileid.CleanOwner(ownerID)
	if err != nil {
		return apperr.New(apperr.KindClientInput, op, err)
	}
	if err := p.index.DropCollection(ctx, ownerID); err != nil {
		return err
	}
	if p.keyword != nil {
		if _, err := p.keyword.DeleteOwner(ctx, ownerID); err != nil {
			p.logger.Warn("keyword delete failed", zap.String("owner_id", ownerID), zap.Error(err))
		}
	}
	if err := p.blobs.DeleteAll(ctx, ownerID); err != nil {
		return apperr.New(apperr.KindStorage, op, err)
	}
	n, err := p.catalog.DeleteAllFiles(ctx, ownerID)
	if err != nil {
		return apperr.New(apperr.KindStorage, op, err)
	}
	p.logger.Info("removed all files", zap.String("owner_id", ownerID), zap.Int("records", n))
	return nil
}

// Files lists the owner's stored files.
func (p *Pipeline) Files(ctx context.Context, ownerID string) ([]models.FileRecord, error) {
	ownerID, err := fileid.CleanOwner(ownerID)
	if err != nil {
		return nil, apperr.New(apperr.KindClientInput, "list files", err)
	}
	files, err := p.catalog.ListFiles(ctx, ownerID)
	if err != nil {
		return nil, apperr.New(apperr.KindStorage, "list files", err)
	}
	return files, nil
}
