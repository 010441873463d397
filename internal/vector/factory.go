package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/docuchat/internal/config"
)

// Backend names a Store implementation.
type Backend string

const (
	// BackendMemory keeps vectors in process, optionally snapshotted to vector.snapshot_path.
	BackendMemory Backend = "memory"
	// BackendSQLite keeps vectors in a SQLite file at vector.path.
	BackendSQLite Backend = "sqlite"
	// BackendPGVector keeps vectors in PostgreSQL with pgvector at vector.dsn.
	BackendPGVector Backend = "pgvector"
)

// NewStore creates the store selected by cfg.Backend. A memory store is loaded from
// cfg.SnapshotPath when the snapshot exists.
func NewStore(ctx context.Context, cfg config.VectorConfig, dimensions int) (Store, error) {
	switch Backend(cfg.Backend) {
	case BackendMemory, "":
		s, err := NewMemoryStore(dimensions)
		if err != nil {
			return nil, err
		}
		if err := s.Load(cfg.SnapshotPath); err != nil {
			return nil, fmt.Errorf("load vector snapshot: %w", err)
		}
		return s, nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("vector.path is required for the sqlite backend")
		}
		return NewSQLiteStore(cfg.Path, dimensions)
	case BackendPGVector:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("vector.dsn is required for the pgvector backend")
		}
		return NewPGVectorStore(ctx, cfg.DSN, dimensions)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, sqlite, pgvector)", cfg.Backend)
	}
}
