package vector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/hyperjump/docuchat/internal/models"
)

// PGVectorStore keeps collections in PostgreSQL with the pgvector extension. Candidates are
// ordered by the database using the cosine distance operator.
type PGVectorStore struct {
	db         *sql.DB
	dimensions int
}

// NewPGVectorStore connects to dsn, enables the vector extension and creates the tables.
func NewPGVectorStore(ctx context.Context, dsn string, dimensions int) (*PGVectorStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	s := &PGVectorStore{db: db, dimensions: dimensions}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PGVectorStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS docuchat_collections (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS docuchat_embeddings (
			collection TEXT NOT NULL REFERENCES docuchat_collections(name) ON DELETE CASCADE,
			id TEXT NOT NULL,
			file_id TEXT NOT NULL,
			source_name TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (collection, id)
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS docuchat_embeddings_file ON docuchat_embeddings(collection, file_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCollection implements Store.
func (s *PGVectorStore) EnsureCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO docuchat_collections (name, created_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		name, time.Now())
	return err
}

// Add implements Store in a single transaction.
func (s *PGVectorStore) Add(ctx context.Context, collection string, chunks []models.EmbeddedChunk) error {
	for i, ec := range chunks {
		if len(ec.Vector) != s.dimensions {
			return fmt.Errorf("%w: chunk %d has %d, expected %d", ErrDimensionMismatch, i, len(ec.Vector), s.dimensions)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ec := range chunks {
		c := ec.Chunk
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO docuchat_embeddings (collection, id, file_id, source_name, owner_id, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT DO NOTHING`,
			collection, c.ID, c.Source.FileID, c.Source.Name, c.Source.OwnerID, c.Index, c.Text,
			pgvector.NewVector(ec.Vector)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanPGCandidates(rows *sql.Rows, withScore bool) ([]Candidate, error) {
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var (
			c   Candidate
			vec pgvector.Vector
		)
		dest := []interface{}{&c.Chunk.ID, &c.Chunk.Source.FileID, &c.Chunk.Source.Name, &c.Chunk.Source.OwnerID,
			&c.Chunk.Index, &c.Chunk.Text, &vec}
		if withScore {
			dest = append(dest, &c.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		c.Vector = vec.Slice()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Candidates implements Store.
func (s *PGVectorStore) Candidates(ctx context.Context, collection string, query []float32, n int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, source_name, owner_id, chunk_index, content, embedding, 1 - (embedding <=> $2) AS score
		 FROM docuchat_embeddings WHERE collection = $1
		 ORDER BY embedding <=> $2 LIMIT $3`,
		collection, pgvector.NewVector(query), n)
	if err != nil {
		return nil, err
	}
	return scanPGCandidates(rows, true)
}

// Get implements Store.
func (s *PGVectorStore) Get(ctx context.Context, collection string, ids []string) ([]Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, source_name, owner_id, chunk_index, content, embedding
		 FROM docuchat_embeddings WHERE collection = $1 AND id = ANY($2)`,
		collection, ids)
	if err != nil {
		return nil, err
	}
	return scanPGCandidates(rows, false)
}

// DeleteSource implements Store.
func (s *PGVectorStore) DeleteSource(ctx context.Context, collection, fileID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM docuchat_embeddings WHERE collection = $1 AND file_id = $2`, collection, fileID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DropCollection implements Store. Embeddings go with the collection row.
func (s *PGVectorStore) DropCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM docuchat_collections WHERE name = $1`, name)
	return err
}

// Stats implements Store.
func (s *PGVectorStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM docuchat_collections), (SELECT COUNT(*) FROM docuchat_embeddings)`).
		Scan(&st.Collections, &st.Vectors)
	return st, err
}

// Close closes the connection pool.
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
