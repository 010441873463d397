// Package catalog is the relational record of owners, ingested files and audit events.
package catalog

import (
	"context"
	"errors"

	"github.com/hyperjump/docuchat/internal/models"
)

// ErrNotFound is returned when a looked-up file does not exist.
var ErrNotFound = errors.New("not found")

// Catalog stores FileRecord, UserRecord and AuditEvent rows.
type Catalog interface {
	// EnsureUser inserts the user row if it does not exist. Existing rows are left unchanged.
	EnsureUser(ctx context.Context, u models.UserRecord) error
	// CreateFile inserts a file row. The owner must exist.
	CreateFile(ctx context.Context, f *models.FileRecord) error
	// ListFiles returns the owner's files, oldest first.
	ListFiles(ctx context.Context, ownerID string) ([]models.FileRecord, error)
	// FilesByName returns the owner's files with the given name, oldest first.
	FilesByName(ctx context.Context, ownerID, name string) ([]models.FileRecord, error)
	// DeleteFile removes one file row. ErrNotFound when there is none.
	DeleteFile(ctx context.Context, ownerID, fileID string) error
	// DeleteAllFiles removes every file row of the owner and reports how many.
	DeleteAllFiles(ctx context.Context, ownerID string) (int, error)
	// CountFiles counts file rows across all owners.
	CountFiles(ctx context.Context) (int64, error)

	// RecordAudit appends an audit event.
	RecordAudit(ctx context.Context, e models.AuditEvent) error
	// ListAudit returns the most recent audit events, newest first. An empty owner lists all.
	ListAudit(ctx context.Context, ownerID string, limit int) ([]models.AuditEvent, error)

	Close() error
}
