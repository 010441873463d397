// Package inbox ingests files dropped into watched folders laid out as <root>/<owner_id>/<file>.
// A file is removed from the inbox once it has been ingested; a failed file stays in place.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/extract"
	"github.com/hyperjump/docuchat/internal/ingest"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// Ingester is the part of the ingestion pipeline the inbox drives.
type Ingester interface {
	Ingest(ctx context.Context, ownerID string, up ingest.Upload) (*ingest.Result, error)
}

// Inbox binds a Watcher to an Ingester.
type Inbox struct {
	roots    []string
	ingester Ingester
	watcher  *Watcher
	ctx      context.Context
	logger   *zap.Logger
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Inbox) { b.logger = l }
}

// New creates an inbox over roots. Only files with one of extensions are picked up (empty = all).
func New(roots, extensions []string, ing Ingester, opts ...Option) *Inbox {
	b := &Inbox{ingester: ing, ctx: context.Background()}
	for _, o := range opts {
		o(b)
	}
	b.logger = utils.LoggerOrNop(b.logger)
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			b.roots = append(b.roots, filepath.Clean(abs))
		}
	}
	b.watcher = NewWatcher(b.roots, extensions, b.handle, WithWatcherLogger(b.logger))
	return b
}

// Start begins watching. Ingestion triggered by the watcher runs under ctx.
func (b *Inbox) Start(ctx context.Context) error {
	b.ctx = ctx
	return b.watcher.Start(ctx)
}

// SyncExisting ingests the files already present in the inbox.
func (b *Inbox) SyncExisting() {
	b.watcher.SyncExisting()
}

// Stop stops watching.
func (b *Inbox) Stop() {
	b.watcher.Stop()
}

func (b *Inbox) handle(path string) {
	if err := b.Process(b.ctx, path); err != nil {
		b.logger.Warn("inbox file not ingested", zap.String("path", path), zap.Error(err))
	}
}

// Process ingests one inbox file for the owner named by its folder and removes it on success.
func (b *Inbox) Process(ctx context.Context, path string) error {
	owner, name, ok := b.ownerFor(path)
	if !ok {
		return fmt.Errorf("%s is not inside an owner folder of the inbox", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open inbox file: %w", err)
	}
	res, err := b.ingester.Ingest(ctx, owner, ingest.Upload{
		Filename:    name,
		ContentType: extract.ContentTypeForName(name),
		Body:        f,
	})
	_ = f.Close()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		b.logger.Warn("failed to remove ingested inbox file", zap.String("path", path), zap.Error(err))
	}
	b.logger.Info("ingested inbox file",
		zap.String("owner_id", owner),
		zap.String("filename", name),
		zap.Int("chunks", res.Chunks),
		zap.Bool("searchable", res.Searchable))
	return nil
}

// ownerFor splits path into owner folder and file name. The file must sit directly inside an
// owner folder of one of the roots.
func (b *Inbox) ownerFor(path string) (owner, name string, ok bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", false
	}
	for _, root := range b.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
	return "", "", false
}
