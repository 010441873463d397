package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrReadUpload marks a failure reading the upload body, as opposed to writing the scratch copy.
var ErrReadUpload = errors.New("read upload")

// sourceReader remembers the last non-EOF error returned by the wrapped reader.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// Scratch is a private directory for one ingestion's intermediate files.
type Scratch struct {
	Dir string
}

// NewScratch creates a fresh directory under root (the system temp dir when empty).
func NewScratch(root string) (*Scratch, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, "ingest-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{Dir: dir}, nil
}

// Write copies r into a file named name inside the scratch directory and returns its path.
// Errors reading r wrap ErrReadUpload; anything else is a local filesystem failure.
func (s *Scratch) Write(name string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}
	src := &sourceReader{r: r}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if src.err != nil {
		return "", n, fmt.Errorf("%w: %w", ErrReadUpload, src.err)
	}
	if err != nil {
		return "", n, fmt.Errorf("write scratch file: %w", err)
	}
	return path, n, nil
}

// Close removes the directory and everything in it.
func (s *Scratch) Close() error {
	return os.RemoveAll(s.Dir)
}
