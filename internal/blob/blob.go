// Package blob stores raw uploads under <base>/<owner>/<filename> on any afs-supported scheme
// (file://, mem://, s3://, gs://).
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	_ "github.com/viant/afs/mem"
	afsurl "github.com/viant/afs/url"
	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/fileid"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is the blob capability.
type Store interface {
	// Put writes the blob and returns its public URL. An existing blob with the same name is replaced.
	Put(ctx context.Context, ownerID, filename string, r io.Reader) (string, error)
	Open(ctx context.Context, ownerID, filename string) (io.ReadCloser, error)
	// Delete removes one blob. A missing blob is not an error.
	Delete(ctx context.Context, ownerID, filename string) error
	// DeleteAll removes every blob of the owner.
	DeleteAll(ctx context.Context, ownerID string) error
}

// AFSStore implements Store on viant/afs.
type AFSStore struct {
	fs            afs.Service
	baseURL       string
	publicBaseURL string
	logger        *zap.Logger
}

// Option configures an AFSStore.
type Option func(*AFSStore)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *AFSStore) { s.logger = l }
}

// WithPublicBaseURL makes Put return <public>/blobs/<owner>/<filename>, served by the HTTP
// server, instead of the storage URL.
func WithPublicBaseURL(public string) Option {
	return func(s *AFSStore) { s.publicBaseURL = strings.TrimRight(public, "/") }
}

// NewAFSStore creates a store rooted at baseURL.
func NewAFSStore(baseURL string, opts ...Option) (*AFSStore, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("blob base url is required")
	}
	s := &AFSStore{fs: afs.New(), baseURL: strings.TrimRight(baseURL, "/")}
	for _, o := range opts {
		o(s)
	}
	s.logger = utils.LoggerOrNop(s.logger)
	return s, nil
}

// ownerURL and objectURL only accept single path components, so no owner or filename can reach
// outside its owner's directory under the base URL.
func (s *AFSStore) ownerURL(ownerID string) (string, error) {
	owner, err := fileid.CleanOwner(ownerID)
	if err != nil {
		return "", err
	}
	if owner != ownerID {
		return "", fmt.Errorf("%w: %q", fileid.ErrInvalidOwner, ownerID)
	}
	return afsurl.Join(s.baseURL, owner), nil
}

func (s *AFSStore) objectURL(ownerID, filename string) (string, error) {
	key, err := fileid.BlobKey(ownerID, filename)
	if err != nil {
		return "", err
	}
	return afsurl.Join(s.baseURL, key), nil
}

// PublicURL is the URL Put reports for a blob.
func (s *AFSStore) PublicURL(ownerID, filename string) string {
	if s.publicBaseURL == "" {
		return afsurl.Join(s.baseURL, ownerID, filename)
	}
	return s.publicBaseURL + "/blobs/" + url.PathEscape(ownerID) + "/" + url.PathEscape(filename)
}

// Put implements Store.
func (s *AFSStore) Put(ctx context.Context, ownerID, filename string, r io.Reader) (string, error) {
	u, err := s.objectURL(ownerID, filename)
	if err != nil {
		return "", err
	}
	if ok, _ := s.fs.Exists(ctx, u); ok {
		if err := s.fs.Delete(ctx, u); err != nil {
			return "", fmt.Errorf("replace blob %s: %w", u, err)
		}
	}
	if err := s.fs.Upload(ctx, u, file.DefaultFileOsMode, r); err != nil {
		return "", fmt.Errorf("upload blob %s: %w", u, err)
	}
	s.logger.Debug("stored blob", zap.String("url", u))
	return s.PublicURL(ownerID, filename), nil
}

// Open implements Store.
func (s *AFSStore) Open(ctx context.Context, ownerID, filename string) (io.ReadCloser, error) {
	u, err := s.objectURL(ownerID, filename)
	if err != nil {
		return nil, err
	}
	ok, err := s.fs.Exists(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("stat blob %s: %w", u, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", u, ErrNotFound)
	}
	rc, err := s.fs.OpenURL(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", u, err)
	}
	return rc, nil
}

// Delete implements Store.
func (s *AFSStore) Delete(ctx context.Context, ownerID, filename string) error {
	u, err := s.objectURL(ownerID, filename)
	if err != nil {
		return err
	}
	return s.deleteURL(ctx, u)
}

// DeleteAll implements Store.
func (s *AFSStore) DeleteAll(ctx context.Context, ownerID string) error {
	u, err := s.ownerURL(ownerID)
	if err != nil {
		return err
	}
	return s.deleteURL(ctx, u)
}

func (s *AFSStore) deleteURL(ctx context.Context, u string) error {
	ok, err := s.fs.Exists(ctx, u)
	if err != nil {
		return fmt.Errorf("stat blob %s: %w", u, err)
	}
	if !ok {
		return nil
	}
	if err := s.fs.Delete(ctx, u); err != nil {
		return fmt.Errorf("delete blob %s: %w", u, err)
	}
	return nil
}
