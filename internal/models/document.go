// Package models defines core data structures for documents, chunks, catalog records and conversations.
package models

import (
	"strings"
	"time"
)

// Format is the extraction family a document belongs to.
type Format string

const (
	FormatPDF    Format = "pdf"
	FormatImage  Format = "image"
	FormatVideo  Format = "video"
	FormatOffice Format = "office"
	FormatText   Format = "text"
)

// Document is an uploaded file during ingestion. Path points into the ingestion scratch
// directory and is only valid until the ingestion returns.
type Document struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Format      Format `json:"format"`
	Path        string `json:"-"`
}

// ChunkSource identifies where a chunk came from.
type ChunkSource struct {
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
	FileID  string `json:"file_id"`
}

// Chunk is a contiguous span of a document's extracted text. Text is never blank.
type Chunk struct {
	ID     string      `json:"id"`
	Text   string      `json:"text"`
	Index  int         `json:"index"`
	Source ChunkSource `json:"source"`
}

// Valid reports whether the chunk carries usable text.
func (c Chunk) Valid() bool {
	return strings.TrimSpace(c.Text) != ""
}

// EmbeddedChunk pairs a chunk with its embedding vector.
type EmbeddedChunk struct {
	Vector []float32 `json:"-"`
	Chunk  Chunk     `json:"chunk"`
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// FileRecord is the catalog row for a successfully ingested upload.
type FileRecord struct {
	ID         string    `json:"id" db:"id"`
	OwnerID    string    `json:"user_id" db:"user_id"`
	URL        string    `json:"url" db:"url"`
	Name       string    `json:"name" db:"name"`
	Type       string    `json:"type" db:"type"`
	Searchable bool      `json:"searchable" db:"searchable"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// UserRecord is the catalog row for an owner. No credential material is stored.
type UserRecord struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Audit stages.
const (
	StageTranscription   = "transcription"
	StageOrphanedVectors = "orphaned_vectors"
)

// AuditEvent records a failure that needs human or batch follow-up.
type AuditEvent struct {
	ID        int64     `json:"id" db:"id"`
	OwnerID   string    `json:"user_id" db:"user_id"`
	Filename  string    `json:"filename" db:"filename"`
	Stage     string    `json:"stage" db:"stage"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// KeywordHit is a full-text match on a chunk.
type KeywordHit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}
