// Package fileid provides identifiers for uploaded files and the chunks cut from them.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const chunkPrefix = "chunk:"

// ErrInvalidOwner is returned for owner ids that are empty or could address storage outside the
// owner's own partition.
var ErrInvalidOwner = errors.New("invalid user_id")

// New returns a fresh file ID.
func New() string {
	return uuid.NewString()
}

// ChunkID returns a stable chunk ID for the chunk at index within a file.
// Same file ID and index always yield the same ID.
func ChunkID(fileID string, index int) string {
	hash := sha256.Sum256([]byte(fileID + "#" + strconv.Itoa(index)))
	return chunkPrefix + hex.EncodeToString(hash[:16])
}

// CleanName reduces a client-supplied filename to its base name with path separators removed.
// Returns an empty string when nothing usable remains.
func CleanName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// CleanOwner trims an owner id and rejects ids that are empty, "." or "..", or that contain a path
// separator or a control character. Owner ids name blob directories, so these are never valid.
func CleanOwner(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: user_id is required", ErrInvalidOwner)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, id)
	}
	return id, nil
}

// BlobKey returns the blob store key for an owner's file. Both parts must be single path
// components: the owner must pass CleanOwner and the filename must be its own CleanName.
func BlobKey(ownerID, filename string) (string, error) {
	owner, err := CleanOwner(ownerID)
	if err != nil {
		return "", err
	}
	if owner != ownerID {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, ownerID)
	}
	if filename == "" || CleanName(filename) != filename {
		return "", fmt.Errorf("invalid blob name %q", filename)
	}
	return owner + "/" + filename, nil
}
