// Package staging implements the cache area for uploaded content.
//
// Caching is the cheap, reversible step that precedes durable storage: a
// payload is written under a fresh token inside the staging directory, and
// the token is the only thing a caller needs to get the payload back later
// (e.g. after a form round trip). Nothing in the staging area is durable;
// abandoned entries are reclaimed by Sweep.
//
// Layout: <dir>/<token>/<filename>, token = "<unix seconds>-<uuid>".
// The token doubles as the cache name serialized by pkg/mount.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/filemount/filemount/internal/bytesize"
	"github.com/filemount/filemount/internal/logger"
)

// ErrNotFound indicates the token has no staged entry.
var ErrNotFound = errors.New("staged entry not found")

// tokenPattern guards against path traversal through crafted tokens.
var tokenPattern = regexp.MustCompile(`^\d+-[0-9a-fA-F-]+$`)

// Entry describes one staged payload.
type Entry struct {
	// Token identifies the entry and names its directory.
	Token string `json:"token"`

	// Filename is the original (sanitized) file name inside the entry.
	Filename string `json:"filename"`

	// Size is the payload size in bytes.
	Size int64 `json:"size"`

	// StagedAt is when the payload was written.
	StagedAt time.Time `json:"staged_at"`
}

// Area is a staging directory with an optional persistent token index.
//
// When an Index is attached, Resolve never touches the filesystem for
// lookups and Sweep can enumerate entries without walking the tree. Without
// an index the directory itself is the source of truth.
type Area struct {
	dir   string
	index *Index
}

// New creates a staging area rooted at dir. idx may be nil.
func New(dir string, idx *Index) (*Area, error) {
	if dir == "" {
		return nil, fmt.Errorf("staging area requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir %q: %w", dir, err)
	}
	return &Area{dir: dir, index: idx}, nil
}

// Dir returns the staging root directory.
func (a *Area) Dir() string {
	return a.dir
}

// NewToken mints a fresh staging token.
func NewToken() string {
	return fmt.Sprintf("%d-%s", time.Now().Unix(), uuid.NewString())
}

// ValidToken reports whether s has the shape of a staging token.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// sanitizeFilename strips any path components from a client-supplied name.
func sanitizeFilename(name string) string {
	clean := filepath.Base(filepath.Clean(name))
	if clean == "" || clean == "." || clean == ".." || clean == string(os.PathSeparator) {
		return "file"
	}
	return clean
}

// Put stages the payload under the given token, replacing any previous
// content for that token. Returns the resulting entry.
func (a *Area) Put(ctx context.Context, token, filename string, r io.Reader) (Entry, error) {
	if !ValidToken(token) {
		return Entry{}, fmt.Errorf("invalid staging token: %q", token)
	}

	entryDir := filepath.Join(a.dir, token)
	if err := os.RemoveAll(entryDir); err != nil {
		return Entry{}, fmt.Errorf("failed to clear staging entry: %w", err)
	}
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("failed to create staging entry: %w", err)
	}

	name := sanitizeFilename(filename)
	path := filepath.Join(entryDir, name)

	f, err := os.Create(path)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create staged file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.RemoveAll(entryDir)
		return Entry{}, fmt.Errorf("failed to write staged file: %w", err)
	}

	entry := Entry{
		Token:    token,
		Filename: name,
		Size:     n,
		StagedAt: time.Now(),
	}

	if a.index != nil {
		if err := a.index.Put(entry); err != nil {
			logger.Warn("failed to index staged entry", "token", token, "error", err)
		}
	}

	logger.Debug("payload staged", "token", token, "filename", name, "bytes", bytesize.ByteSize(n))
	return entry, nil
}

// Resolve looks up the entry for a token.
func (a *Area) Resolve(ctx context.Context, token string) (Entry, error) {
	if !ValidToken(token) {
		return Entry{}, fmt.Errorf("invalid staging token: %q", token)
	}

	if a.index != nil {
		entry, err := a.index.Get(token)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Entry{}, err
		}
		// Fall through: the directory may predate the index.
	}

	entryDir := filepath.Join(a.dir, token)
	entries, err := os.ReadDir(entryDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, token)
		}
		return Entry{}, fmt.Errorf("failed to read staging entry: %w", err)
	}

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return Entry{}, fmt.Errorf("failed to stat staged file: %w", err)
		}
		return Entry{
			Token:    token,
			Filename: de.Name(),
			Size:     info.Size(),
			StagedAt: info.ModTime(),
		}, nil
	}

	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, token)
}

// Path returns the on-disk path for a staged entry.
func (a *Area) Path(entry Entry) string {
	return filepath.Join(a.dir, entry.Token, entry.Filename)
}

// Open returns a reader for the staged payload.
func (a *Area) Open(ctx context.Context, token string) (Entry, io.ReadCloser, error) {
	entry, err := a.Resolve(ctx, token)
	if err != nil {
		return Entry{}, nil, err
	}

	f, err := os.Open(a.Path(entry))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, nil, fmt.Errorf("%w: %s", ErrNotFound, token)
		}
		return Entry{}, nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	return entry, f, nil
}

// Remove deletes a staged entry and its index record. Removing a missing
// entry is not an error.
func (a *Area) Remove(ctx context.Context, token string) error {
	if !ValidToken(token) {
		return fmt.Errorf("invalid staging token: %q", token)
	}

	if err := os.RemoveAll(filepath.Join(a.dir, token)); err != nil {
		return fmt.Errorf("failed to remove staging entry: %w", err)
	}
	if a.index != nil {
		if err := a.index.Delete(token); err != nil {
			logger.Warn("failed to unindex staged entry", "token", token, "error", err)
		}
	}
	return nil
}

// Sweep removes entries staged earlier than the cutoff and returns how many
// were removed. The entry age comes from the token's timestamp prefix, so
// Sweep works even for entries whose files were partially deleted.
func (a *Area) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()

	dirs, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read staging dir: %w", err)
	}

	removed := 0
	for _, de := range dirs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !de.IsDir() || !ValidToken(de.Name()) {
			continue
		}

		ts, _, _ := strings.Cut(de.Name(), "-")
		staged, err := strconv.ParseInt(ts, 10, 64)
		if err != nil || staged >= cutoff {
			continue
		}

		if err := a.Remove(ctx, de.Name()); err != nil {
			logger.Warn("failed to sweep staged entry", "token", de.Name(), "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("staging area swept", "removed", removed, "older_than", olderThan)
	}
	return removed, nil
}
