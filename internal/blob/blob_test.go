package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docuchat/internal/fileid"
)

func memBase(t *testing.T) string {
	return "mem://localhost/docuchat/" + strings.ReplaceAll(t.Name(), "/", "_")
}

func TestAFSStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewAFSStore(memBase(t))
	require.NoError(t, err)

	u, err := s.Put(ctx, "u1", "invoice.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Equal(t, memBase(t)+"/u1/invoice.pdf", u)

	rc, err := s.Open(ctx, "u1", "invoice.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	// replace keeps one blob with the new content
	_, err = s.Put(ctx, "u1", "invoice.pdf", strings.NewReader("v2"))
	require.NoError(t, err)
	rc, err = s.Open(ctx, "u1", "invoice.pdf")
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "v2", string(data))

	require.NoError(t, s.Delete(ctx, "u1", "invoice.pdf"))
	_, err = s.Open(ctx, "u1", "invoice.pdf")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, s.Delete(ctx, "u1", "invoice.pdf"), "deleting a missing blob is not an error")
}

func TestAFSStore_DeleteAll(t *testing.T) {
	ctx := context.Background()
	s, err := NewAFSStore(memBase(t))
	require.NoError(t, err)
	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := s.Put(ctx, "u1", name, strings.NewReader(name))
		require.NoError(t, err)
	}
	_, err = s.Put(ctx, "u2", "a.txt", strings.NewReader("other"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll(ctx, "u1"))
	_, err = s.Open(ctx, "u1", "a.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
	rc, err := s.Open(ctx, "u2", "a.txt")
	require.NoError(t, err)
	_ = rc.Close()
	assert.NoError(t, s.DeleteAll(ctx, "nobody"))
}

func TestAFSStore_fileScheme(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewAFSStore("file://" + filepath.ToSlash(dir))
	require.NoError(t, err)
	_, err = s.Put(ctx, "u1", "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	rc, err := s.Open(ctx, "u1", "notes.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "hello", string(data))
}

func TestAFSStore_PublicURL(t *testing.T) {
	s, err := NewAFSStore("mem://localhost/x", WithPublicBaseURL("http://localhost:8080/"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/blobs/u1/my%20file.pdf", s.PublicURL("u1", "my file.pdf"))

	_, err = NewAFSStore(" ")
	assert.Error(t, err)
}

func TestAFSStore_rejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("catalog"), 0o644))
	s, err := NewAFSStore("file://" + filepath.ToSlash(filepath.Join(dir, "blobs")))
	require.NoError(t, err)

	for _, owner := range []string{"..", "a/../..", ".", `..\..`, ""} {
		_, err := s.Put(ctx, owner, "escaped.txt", strings.NewReader("x"))
		assert.True(t, errors.Is(err, fileid.ErrInvalidOwner), "Put owner %q: %v", owner, err)
		assert.Error(t, s.DeleteAll(ctx, owner), "DeleteAll owner %q", owner)
		assert.Error(t, s.Delete(ctx, owner, "secret.txt"), "Delete owner %q", owner)
		_, err = s.Open(ctx, owner, "secret.txt")
		assert.Error(t, err, "Open owner %q", owner)
	}
	for _, name := range []string{"../../secret.txt", "..", "a/b.txt"} {
		_, err := s.Put(ctx, "u1", name, strings.NewReader("x"))
		assert.Error(t, err, "Put name %q", name)
	}

	_, err = os.Stat(filepath.Join(dir, "escaped.txt"))
	assert.True(t, os.IsNotExist(err), "nothing is written outside the base")
	data, err := os.ReadFile(secret)
	require.NoError(t, err)
	assert.Equal(t, "catalog", string(data))
}
