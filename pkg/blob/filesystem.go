package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/filemount/filemount/internal/logger"
)

// FilesystemStore stores blobs as files under a root directory.
//
// Layout: <root>/<id[0:2]>/<id>. The two-character fan-out directory keeps
// any single directory from accumulating an unbounded number of entries.
// IDs shorter than two characters land in <root>/_/.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a filesystem-backed store rooted at dir.
// The directory is created if it does not exist.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("filesystem store requires a root directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root %q: %w", dir, err)
	}
	return &FilesystemStore{root: dir}, nil
}

// Root returns the store's root directory.
func (s *FilesystemStore) Root() string {
	return s.root
}

// pathFor maps a blob ID to its on-disk location. The ID is sanitized so a
// crafted ID cannot escape the store root.
func (s *FilesystemStore) pathFor(id string) (string, error) {
	clean := filepath.Base(filepath.Clean(id))
	if clean == "" || clean == "." || clean == ".." || strings.ContainsRune(clean, os.PathSeparator) {
		return "", fmt.Errorf("invalid blob id: %q", id)
	}

	fanout := "_"
	if len(clean) >= 2 {
		fanout = clean[:2]
	}
	return filepath.Join(s.root, fanout, clean), nil
}

// Put writes the blob atomically: content lands in a temp file first and is
// renamed into place, so readers never observe a partial blob.
func (s *FilesystemStore) Put(ctx context.Context, id string, r io.Reader) (int64, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write blob %q: %w", id, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to finalize blob %q: %w", id, err)
	}

	logger.Debug("blob stored", "id", id, "bytes", n, "store", "filesystem")
	return n, nil
}

// Open returns a reader for the blob.
func (s *FilesystemStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to open blob %q: %w", id, err)
	}
	return f, nil
}

// Delete removes the blob. Missing blobs are ignored.
func (s *FilesystemStore) Delete(ctx context.Context, id string) error {
	path, err := s.pathFor(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %q: %w", id, err)
	}
	return nil
}

// Exists reports whether the blob is present.
func (s *FilesystemStore) Exists(ctx context.Context, id string) (bool, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob %q: %w", id, err)
}

// Size returns the blob size in bytes.
func (s *FilesystemStore) Size(ctx context.Context, id string) (int64, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return 0, fmt.Errorf("failed to stat blob %q: %w", id, err)
	}
	return info.Size(), nil
}

// Healthcheck verifies the root directory is writable.
func (s *FilesystemStore) Healthcheck(ctx context.Context) error {
	f, err := os.CreateTemp(s.root, ".healthcheck-*")
	if err != nil {
		return fmt.Errorf("store root not writable: %w", err)
	}
	_ = f.Close()
	return os.Remove(f.Name())
}

var _ Store = (*FilesystemStore)(nil)
