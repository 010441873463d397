package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docuchat/internal/models"
)

func newCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "sub", "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSQLiteCatalog_Files(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	if err := c.EnsureUser(ctx, models.UserRecord{ID: "u1", Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	// idempotent
	if err := c.EnsureUser(ctx, models.UserRecord{ID: "u1", Name: "Other"}); err != nil {
		t.Fatal(err)
	}

	f1 := &models.FileRecord{ID: "f1", OwnerID: "u1", URL: "file:///b/u1/a.pdf", Name: "a.pdf", Type: "application/pdf", Searchable: true}
	f2 := &models.FileRecord{ID: "f2", OwnerID: "u1", URL: "file:///b/u1/b.png", Name: "b.png", Type: "image/png"}
	for _, f := range []*models.FileRecord{f1, f2} {
		if err := c.CreateFile(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	if f1.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	files, err := c.ListFiles(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].ID != "f1" || files[1].ID != "f2" {
		t.Fatalf("ListFiles = %+v", files)
	}
	if !files[0].Searchable || files[1].Searchable {
		t.Errorf("searchable flags not preserved: %+v", files)
	}

	byName, err := c.FilesByName(ctx, "u1", "b.png")
	if err != nil {
		t.Fatal(err)
	}
	if len(byName) != 1 || byName[0].URL != f2.URL {
		t.Errorf("FilesByName = %+v", byName)
	}

	if others, _ := c.ListFiles(ctx, "u2"); len(others) != 0 {
		t.Errorf("u2 should see no files, got %d", len(others))
	}

	if err := c.DeleteFile(ctx, "u1", "f1"); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteFile(ctx, "u1", "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	n, err := c.CountFiles(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountFiles = %d, %v; want 1", n, err)
	}
	removed, err := c.DeleteAllFiles(ctx, "u1")
	if err != nil || removed != 1 {
		t.Errorf("DeleteAllFiles = %d, %v; want 1", removed, err)
	}
}

func TestSQLiteCatalog_CreateFileRequiresUser(t *testing.T) {
	c := newCatalog(t)
	err := c.CreateFile(context.Background(), &models.FileRecord{ID: "f1", OwnerID: "ghost", URL: "u", Name: "n", Type: "t"})
	if err == nil {
		t.Fatal("expected foreign key violation for unknown owner")
	}
}

func TestSQLiteCatalog_Audit(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	events := []models.AuditEvent{
		{OwnerID: "u1", Filename: "talk.mp4", Stage: models.StageTranscription, Reason: "speech not recognised"},
		{OwnerID: "u2", Filename: "a.pdf", Stage: models.StageOrphanedVectors, Reason: "blob put failed"},
		{OwnerID: "u1", Filename: "b.pdf", Stage: models.StageOrphanedVectors, Reason: "catalog insert failed"},
	}
	for _, e := range events {
		if err := c.RecordAudit(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	all, err := c.ListAudit(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Filename != "b.pdf" {
		t.Fatalf("ListAudit all = %+v, want newest first", all)
	}

	u1, err := c.ListAudit(ctx, "u1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(u1) != 1 || u1[0].Stage != models.StageOrphanedVectors {
		t.Errorf("ListAudit u1 limit 1 = %+v", u1)
	}
	if u1[0].ID == 0 || u1[0].CreatedAt.IsZero() {
		t.Errorf("id and created_at should be set: %+v", u1[0])
	}
}
