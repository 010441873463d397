package vector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docuchat/internal/models"
)

// SQLiteStore keeps collections in a SQLite database, vectors as little-endian float32 blobs.
// Search loads the collection's vectors and scores them in process.
type SQLiteStore struct {
	db         *sql.DB
	dimensions int
}

// NewSQLiteStore opens or creates the database at dbPath. Parent directories are created if
// they do not exist.
func NewSQLiteStore(dbPath string, dimensions int) (*SQLiteStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initVectorSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, dimensions: dimensions}, nil
}

func initVectorSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		file_id TEXT NOT NULL,
		source_name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		vector BLOB NOT NULL,
		PRIMARY KEY (collection, id),
		FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_file ON embeddings(collection, file_id);
	`
	_, err := db.Exec(schema)
	return err
}

// EnsureCollection implements Store.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, created_at) VALUES (?, ?)`, name, time.Now())
	return err
}

// Add implements Store in a single transaction.
func (s *SQLiteStore) Add(ctx context.Context, collection string, chunks []models.EmbeddedChunk) error {
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

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO embeddings (collection, id, file_id, source_name, owner_id, chunk_index, content, vector)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ec := range chunks {
		c := ec.Chunk
		if _, err := stmt.ExecContext(ctx, collection, c.ID, c.Source.FileID, c.Source.Name, c.Source.OwnerID,
			c.Index, c.Text, float32SliceToBytes(ec.Vector)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const embeddingColumns = `id, file_id, source_name, owner_id, chunk_index, content, vector`

func scanCandidates(rows *sql.Rows) ([]Candidate, error) {
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var (
			c    Candidate
			blob []byte
		)
		if err := rows.Scan(&c.Chunk.ID, &c.Chunk.Source.FileID, &c.Chunk.Source.Name, &c.Chunk.Source.OwnerID,
			&c.Chunk.Index, &c.Chunk.Text, &blob); err != nil {
			return nil, err
		}
		c.Vector = bytesToFloat32Slice(blob)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Candidates implements Store.
func (s *SQLiteStore) Candidates(ctx context.Context, collection string, query []float32, n int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+embeddingColumns+` FROM embeddings WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, err
	}
	cands, err := scanCandidates(rows)
	if err != nil {
		return nil, err
	}
	return topByCosine(cands, query, n), nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, collection string, ids []string) ([]Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+embeddingColumns+` FROM embeddings WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	return scanCandidates(rows)
}

// DeleteSource implements Store.
func (s *SQLiteStore) DeleteSource(ctx context.Context, collection, fileID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE collection = ? AND file_id = ?`, collection, fileID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DropCollection implements Store.
func (s *SQLiteStore) DropCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE collection = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections`).Scan(&st.Collections); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&st.Vectors); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
