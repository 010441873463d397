package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docuchat/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
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

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		searchable INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_files_user ON files(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_files_user_name ON files(user_id, name);

	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		stage TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(user_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// EnsureUser implements Catalog.
func (s *SQLiteCatalog) EnsureUser(ctx context.Context, u models.UserRecord) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", u.ID, err)
	}
	return nil
}

// CreateFile implements Catalog. CreatedAt is set when zero.
func (s *SQLiteCatalog) CreateFile(ctx context.Context, f *models.FileRecord) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, user_id, url, name, type, searchable, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, f.URL, f.Name, f.Type, f.Searchable, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create file %s: %w", f.Name, err)
	}
	return nil
}

const fileColumns = `id, user_id, url, name, type, searchable, created_at`

func scanFiles(rows *sql.Rows) ([]models.FileRecord, error) {
	defer rows.Close()
	var out []models.FileRecord
	for rows.Next() {
		var f models.FileRecord
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.URL, &f.Name, &f.Type, &f.Searchable, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFiles implements Catalog.
func (s *SQLiteCatalog) ListFiles(ctx context.Context, ownerID string) ([]models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE user_id = ? ORDER BY created_at, rowid`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return scanFiles(rows)
}

// FilesByName implements Catalog.
func (s *SQLiteCatalog) FilesByName(ctx context.Context, ownerID, name string) ([]models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE user_id = ? AND name = ? ORDER BY created_at, rowid`,
		ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("files by name: %w", err)
	}
	return scanFiles(rows)
}

// DeleteFile implements Catalog.
func (s *SQLiteCatalog) DeleteFile(ctx context.Context, ownerID, fileID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE user_id = ? AND id = ?`, ownerID, fileID)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", fileID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	return nil
}

// DeleteAllFiles implements Catalog.
func (s *SQLiteCatalog) DeleteAllFiles(ctx context.Context, ownerID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE user_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete files of %s: %w", ownerID, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CountFiles implements Catalog.
func (s *SQLiteCatalog) CountFiles(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}

// RecordAudit implements Catalog.
func (s *SQLiteCatalog) RecordAudit(ctx context.Context, e models.AuditEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (user_id, filename, stage, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.OwnerID, e.Filename, e.Stage, e.Reason, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// ListAudit implements Catalog.
func (s *SQLiteCatalog) ListAudit(ctx context.Context, ownerID string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, user_id, filename, stage, reason, created_at FROM audit_events`
	args := []interface{}{}
	if ownerID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	var out []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Filename, &e.Stage, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}
