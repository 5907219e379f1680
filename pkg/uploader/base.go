package uploader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/filemount/filemount/internal/bytesize"
	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/pkg/blob"
	"github.com/filemount/filemount/pkg/staging"
)

// Validator inspects a freshly staged payload. A non-nil return rejects the
// content; the error is wrapped in *IntegrityError.
type Validator func(entry staging.Entry, open func() (io.ReadCloser, error)) error

// Processor transforms a staged payload in place (e.g. re-encode, strip
// metadata). A non-nil return is wrapped in *ProcessingError.
type Processor func(ctx context.Context, stagedPath string) error

// Base is the default Uploader: it stages content in a staging.Area and
// persists it into a blob.Store.
//
// Identifier scheme: "<staging token uuid>-<filename>". The identifier is
// fixed at cache time and derived only from the staged entry, so rebuilding
// an uploader from its cache token yields the same identifier the original
// had before storing.
type Base struct {
	area   *staging.Area
	store  blob.Store
	client *http.Client

	validator Validator
	processor Processor

	// maxDownloadSize caps DownloadFrom response bodies. Zero means no cap.
	maxDownloadSize bytesize.ByteSize

	entry  *staging.Entry // non-nil while cached
	id     string         // durable identifier; set at cache time, fixed after store
	stored bool
}

// Option configures a Base uploader.
type Option func(*Base)

// WithValidator installs a content validator.
func WithValidator(v Validator) Option {
	return func(b *Base) { b.validator = v }
}

// WithProcessor installs a content processor.
func WithProcessor(p Processor) Option {
	return func(b *Base) { b.processor = p }
}

// WithHTTPClient overrides the client used by DownloadFrom.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Base) { b.client = c }
}

// WithMaxDownloadSize caps the size accepted by DownloadFrom.
func WithMaxDownloadSize(max bytesize.ByteSize) Option {
	return func(b *Base) { b.maxDownloadSize = max }
}

// NewBase creates an empty Base uploader.
func NewBase(area *staging.Area, store blob.Store, opts ...Option) *Base {
	b := &Base{
		area:   area,
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFactory returns a Factory producing Base uploaders with the given
// collaborators and options.
func NewFactory(area *staging.Area, store blob.Store, opts ...Option) Factory {
	return func() Uploader {
		return NewBase(area, store, opts...)
	}
}

// identifierFor derives the durable identifier from a staged entry.
func identifierFor(entry staging.Entry) string {
	_, uuidPart, _ := strings.Cut(entry.Token, "-")
	return uuidPart + "-" + entry.Filename
}

// Cache stages the payload, then runs validation and processing.
// On any failure the staged entry is removed and prior state is kept.
func (b *Base) Cache(ctx context.Context, p Payload) error {
	token := staging.NewToken()

	entry, err := b.area.Put(ctx, token, p.Filename, p.Content)
	if err != nil {
		return fmt.Errorf("failed to stage payload: %w", err)
	}

	if err := b.checkStaged(ctx, entry); err != nil {
		_ = b.area.Remove(ctx, token)
		return err
	}

	b.entry = &entry
	b.id = identifierFor(entry)
	b.stored = false
	return nil
}

// checkStaged runs the validator and processor against a staged entry.
func (b *Base) checkStaged(ctx context.Context, entry staging.Entry) error {
	if b.validator != nil {
		open := func() (io.ReadCloser, error) {
			_, r, err := b.area.Open(ctx, entry.Token)
			return r, err
		}
		if err := b.validator(entry, open); err != nil {
			return &IntegrityError{Err: err}
		}
	}

	if b.processor != nil {
		if err := b.processor(ctx, b.area.Path(entry)); err != nil {
			return &ProcessingError{Err: err}
		}
	}
	return nil
}

// Store copies the staged content into the blob store under the fixed
// identifier and drops the staged entry.
func (b *Base) Store(ctx context.Context) error {
	if b.stored || b.entry == nil {
		return nil
	}

	entry, r, err := b.area.Open(ctx, b.entry.Token)
	if err != nil {
		return fmt.Errorf("staged content unavailable: %w", err)
	}
	defer func() { _ = r.Close() }()

	n, err := b.store.Put(ctx, b.id, r)
	if err != nil {
		return fmt.Errorf("failed to store %q: %w", b.id, err)
	}

	// The staged copy is redundant now. Failure to drop it is not fatal;
	// Sweep will reclaim it.
	if err := b.area.Remove(ctx, entry.Token); err != nil {
		logger.Warn("failed to drop staged copy after store", "token", entry.Token, "error", err)
	}

	b.entry = nil
	b.stored = true

	logger.Info("upload stored", "identifier", b.id, "bytes", bytesize.ByteSize(n))
	return nil
}

// Remove deletes staged and stored content and resets the uploader.
func (b *Base) Remove(ctx context.Context) error {
	if b.entry != nil {
		if err := b.area.Remove(ctx, b.entry.Token); err != nil {
			return fmt.Errorf("failed to remove staged content: %w", err)
		}
	}
	if b.stored {
		if err := b.store.Delete(ctx, b.id); err != nil {
			return fmt.Errorf("failed to remove stored content: %w", err)
		}
	}

	b.entry = nil
	b.id = ""
	b.stored = false
	return nil
}

// Identifier returns the durable identifier, or "" when empty.
func (b *Base) Identifier() string {
	return b.id
}

// CacheName returns the staging token while cached, else "".
func (b *Base) CacheName() string {
	if b.entry == nil {
		return ""
	}
	return b.entry.Token
}

// Filename returns the sanitized original filename.
func (b *Base) Filename() string {
	if b.entry != nil {
		return b.entry.Filename
	}
	if b.id != "" {
		// Stored identifiers embed the filename after the five uuid groups.
		parts := strings.SplitN(b.id, "-", 6)
		if len(parts) == 6 {
			return parts[5]
		}
		return b.id
	}
	return ""
}

// RetrieveFromCache rebuilds cached state from a staging token.
func (b *Base) RetrieveFromCache(ctx context.Context, token string) error {
	entry, err := b.area.Resolve(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to retrieve cached upload: %w", err)
	}

	b.entry = &entry
	b.id = identifierFor(entry)
	b.stored = false
	return nil
}

// RetrieveFromStore rebuilds stored state from an identifier.
func (b *Base) RetrieveFromStore(ctx context.Context, identifier string) error {
	if identifier == "" {
		return fmt.Errorf("empty identifier")
	}
	b.entry = nil
	b.id = identifier
	b.stored = true
	return nil
}

// DownloadFrom fetches a remote resource into the cache.
func (b *Base) DownloadFrom(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &DownloadError{URL: rawURL, Err: err}
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return &DownloadError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DownloadError{URL: rawURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var body io.Reader = resp.Body
	if b.maxDownloadSize > 0 {
		body = io.LimitReader(resp.Body, b.maxDownloadSize.Int64()+1)
	}

	token := staging.NewToken()
	entry, err := b.area.Put(ctx, token, remoteFilename(rawURL, resp), body)
	if err != nil {
		return fmt.Errorf("failed to stage download: %w", err)
	}

	if b.maxDownloadSize > 0 && entry.Size > b.maxDownloadSize.Int64() {
		_ = b.area.Remove(ctx, token)
		return &DownloadError{URL: rawURL, Err: fmt.Errorf("response exceeds %s", b.maxDownloadSize)}
	}

	if err := b.checkStaged(ctx, entry); err != nil {
		_ = b.area.Remove(ctx, token)
		return err
	}

	b.entry = &entry
	b.id = identifierFor(entry)
	b.stored = false

	logger.Debug("remote upload cached", "url", rawURL, "bytes", bytesize.ByteSize(entry.Size))
	return nil
}

// remoteFilename picks a filename for a downloaded resource: the
// Content-Disposition name if present, else the URL path basename.
func remoteFilename(rawURL string, resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return filepath.Base(name)
			}
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "/" && name != "." {
			return name
		}
	}
	return "download"
}

// Path returns the staged file path while cached, the storage key once
// stored, "" when empty.
func (b *Base) Path() string {
	if b.entry != nil {
		return b.area.Path(*b.entry)
	}
	if b.stored {
		return b.id
	}
	return ""
}

// URL returns a directly fetchable URL for stored content when the blob
// store can produce one (see blob.URLStore), else "".
func (b *Base) URL(ctx context.Context) (string, error) {
	if !b.stored {
		return "", nil
	}
	us, ok := b.store.(blob.URLStore)
	if !ok {
		return "", nil
	}
	return us.URL(ctx, b.id)
}

// Open returns a reader over the current content.
func (b *Base) Open(ctx context.Context) (io.ReadCloser, error) {
	if b.entry != nil {
		_, r, err := b.area.Open(ctx, b.entry.Token)
		return r, err
	}
	if b.stored {
		return b.store.Open(ctx, b.id)
	}
	return nil, fmt.Errorf("%w: uploader is empty", blob.ErrNotFound)
}

var _ Uploader = (*Base)(nil)
