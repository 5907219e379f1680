package mount

import (
	"context"
	"io"

	"github.com/filemount/filemount/pkg/record"
	"github.com/filemount/filemount/pkg/uploader"
)

// Attachment is the typed accessor for a single-valued mount. It is pure
// delegation to the underlying Mounter: every method maps to one mounter
// operation, scoped to the one file slot a single mount has.
type Attachment struct {
	m *Mounter
}

// Attachment returns the single-file accessor for (rec, attribute).
func (r *Registry) Attachment(rec record.Record, attribute string) (*Attachment, error) {
	m, err := r.Mounter(rec, attribute)
	if err != nil {
		return nil, err
	}
	return &Attachment{m: m}, nil
}

// Mounter exposes the underlying mounter.
func (a *Attachment) Mounter() *Mounter { return a.m }

// Set assigns a payload to the attribute (caches it).
func (a *Attachment) Set(ctx context.Context, p uploader.Payload) error {
	return a.m.Cache(ctx, p)
}

// Clear empties the attribute (pending a Store).
func (a *Attachment) Clear(ctx context.Context) error {
	return a.m.Cache(ctx)
}

// Get returns the current uploader, or nil if the attribute is empty.
func (a *Attachment) Get(ctx context.Context) (uploader.Uploader, error) {
	ups, err := a.m.Uploaders(ctx)
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, nil
	}
	return ups[0], nil
}

// IsPresent reports whether the attribute holds a file.
func (a *Attachment) IsPresent(ctx context.Context) (bool, error) {
	return a.m.IsPresent(ctx)
}

// Open returns a reader over the current content.
func (a *Attachment) Open(ctx context.Context) (io.ReadCloser, error) {
	u, err := a.Get(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	return u.Open(ctx)
}

// urler is the optional uploader capability for producing fetchable URLs.
type urler interface {
	URL(ctx context.Context) (string, error)
}

// URL returns a directly fetchable URL for the current content, or "" when
// the attribute is empty or the uploader cannot produce one.
func (a *Attachment) URL(ctx context.Context) (string, error) {
	u, err := a.Get(ctx)
	if err != nil || u == nil {
		return "", err
	}
	ul, ok := u.(urler)
	if !ok {
		return "", nil
	}
	return ul.URL(ctx)
}

// Identifier returns the current identifier, or "".
func (a *Attachment) Identifier(ctx context.Context) (string, error) {
	u, err := a.Get(ctx)
	if err != nil || u == nil {
		return "", err
	}
	return u.Identifier(), nil
}

// CacheToken returns the staging token for cached content, or "".
func (a *Attachment) CacheToken(ctx context.Context) (string, error) {
	if _, err := a.m.Uploaders(ctx); err != nil {
		return "", err
	}
	names := a.m.CacheNames()
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

// SetCacheToken rebuilds the attribute's cached state from a token.
func (a *Attachment) SetCacheToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.m.SetCacheNames(ctx, []string{token})
}

// SetRemoteURL downloads a remote resource into the attribute.
func (a *Attachment) SetRemoteURL(ctx context.Context, url string) error {
	return a.m.SetRemoteURLs(ctx, []string{url})
}

// MarkRemove marks or unmarks the attribute for removal at next Store.
func (a *Attachment) MarkRemove(remove bool) { a.m.SetRemove(remove) }

// MarkedForRemoval reports the pending-removal flag.
func (a *Attachment) MarkedForRemoval() bool { return a.m.MarkedForRemoval() }

// Store persists the attribute durably (or removes it if marked).
func (a *Attachment) Store(ctx context.Context) error { return a.m.Store(ctx) }

// Remove deletes the attribute's content immediately.
func (a *Attachment) Remove(ctx context.Context) error { return a.m.Remove(ctx) }

// IntegrityError returns the retained integrity failure, or nil.
func (a *Attachment) IntegrityError() error { return a.m.IntegrityError() }

// ProcessingError returns the retained processing failure, or nil.
func (a *Attachment) ProcessingError() error { return a.m.ProcessingError() }

// DownloadError returns the retained download failure, or nil.
func (a *Attachment) DownloadError() error { return a.m.DownloadError() }

// AttachmentSet is the typed accessor for a multi-valued mount.
type AttachmentSet struct {
	m *Mounter
}

// AttachmentSet returns the multi-file accessor for (rec, attribute).
func (r *Registry) AttachmentSet(rec record.Record, attribute string) (*AttachmentSet, error) {
	m, err := r.Mounter(rec, attribute)
	if err != nil {
		return nil, err
	}
	return &AttachmentSet{m: m}, nil
}

// Mounter exposes the underlying mounter.
func (s *AttachmentSet) Mounter() *Mounter { return s.m }

// Set assigns payloads to the attribute (caches them).
func (s *AttachmentSet) Set(ctx context.Context, payloads ...uploader.Payload) error {
	return s.m.Cache(ctx, payloads...)
}

// All returns the current uploaders.
func (s *AttachmentSet) All(ctx context.Context) ([]uploader.Uploader, error) {
	return s.m.Uploaders(ctx)
}

// IsPresent reports whether the attribute holds any files.
func (s *AttachmentSet) IsPresent(ctx context.Context) (bool, error) {
	return s.m.IsPresent(ctx)
}

// URLs returns fetchable URLs for the set's content, "" per slot where the
// uploader cannot produce one.
func (s *AttachmentSet) URLs(ctx context.Context) ([]string, error) {
	ups, err := s.m.Uploaders(ctx)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(ups))
	for i, u := range ups {
		ul, ok := u.(urler)
		if !ok {
			continue
		}
		urls[i], err = ul.URL(ctx)
		if err != nil {
			return nil, err
		}
	}
	return urls, nil
}

// Identifiers returns the current identifiers.
func (s *AttachmentSet) Identifiers(ctx context.Context) ([]string, error) {
	if _, err := s.m.Uploaders(ctx); err != nil {
		return nil, err
	}
	return s.m.Identifiers(), nil
}

// CacheTokens returns the staging tokens for cached content.
func (s *AttachmentSet) CacheTokens(ctx context.Context) ([]string, error) {
	if _, err := s.m.Uploaders(ctx); err != nil {
		return nil, err
	}
	return s.m.CacheNames(), nil
}

// SetCacheTokens rebuilds the set's cached state from tokens.
func (s *AttachmentSet) SetCacheTokens(ctx context.Context, tokens []string) error {
	return s.m.SetCacheNames(ctx, tokens)
}

// SetRemoteURLs downloads remote resources into the set.
func (s *AttachmentSet) SetRemoteURLs(ctx context.Context, urls []string) error {
	return s.m.SetRemoteURLs(ctx, urls)
}

// MarkRemove marks or unmarks the set for removal at next Store.
func (s *AttachmentSet) MarkRemove(remove bool) { s.m.SetRemove(remove) }

// MarkedForRemoval reports the pending-removal flag.
func (s *AttachmentSet) MarkedForRemoval() bool { return s.m.MarkedForRemoval() }

// Store persists the set durably (or removes it if marked).
func (s *AttachmentSet) Store(ctx context.Context) error { return s.m.Store(ctx) }

// Remove deletes the set's content immediately.
func (s *AttachmentSet) Remove(ctx context.Context) error { return s.m.Remove(ctx) }

// IntegrityError returns the retained integrity failure, or nil.
func (s *AttachmentSet) IntegrityError() error { return s.m.IntegrityError() }

// ProcessingError returns the retained processing failure, or nil.
func (s *AttachmentSet) ProcessingError() error { return s.m.ProcessingError() }

// DownloadError returns the retained download failure, or nil.
func (s *AttachmentSet) DownloadError() error { return s.m.DownloadError() }
