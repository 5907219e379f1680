// Package uploader defines the upload-handling contract consumed by
// pkg/mount, plus a default implementation over a staging area and a blob
// store.
//
// An Uploader owns the lifecycle of ONE file: stage it cheaply (Cache),
// persist it durably (Store), delete it (Remove), or rebuild its state from
// a cache token or a stored identifier. The Mounter never touches bytes;
// it only drives Uploader instances.
package uploader

import (
	"context"
	"io"
)

// Payload is one file-like input to Cache.
type Payload struct {
	// Filename is the client-supplied name. It is sanitized before use.
	Filename string

	// Content provides the file bytes. Read exactly once.
	Content io.Reader
}

// Uploader manages the lifecycle of a single uploaded file.
//
// State model: an Uploader is empty, cached (staged, reversible), or stored
// (durable). Cache and DownloadFrom move it to cached; Store moves cached to
// stored; Remove returns it to empty. RetrieveFromCache and RetrieveFromStore
// rebuild cached/stored state from serialized tokens.
type Uploader interface {
	// Cache stages the payload. May return *IntegrityError or
	// *ProcessingError; any other error is an I/O-level failure.
	Cache(ctx context.Context, p Payload) error

	// Store persists the cached content durably and fixes the identifier.
	// Calling Store on an already-stored uploader is a no-op.
	Store(ctx context.Context) error

	// Remove deletes the underlying content (staged and/or stored) and
	// resets the uploader to empty. Deletion failures always propagate.
	Remove(ctx context.Context) error

	// Identifier returns the opaque string under which the file is (or will
	// be) located in durable storage. Empty when the uploader is empty.
	// Stable from the moment content is cached.
	Identifier() string

	// CacheName returns the staging token for cached content, or "" if the
	// uploader holds no staged content. The token round-trips through
	// RetrieveFromCache.
	CacheName() string

	// Filename returns the sanitized original file name, or "".
	Filename() string

	// RetrieveFromCache rebuilds cached state from a staging token.
	RetrieveFromCache(ctx context.Context, token string) error

	// RetrieveFromStore rebuilds stored state from an identifier. It does
	// not verify the blob exists; reads fail later if it does not.
	RetrieveFromStore(ctx context.Context, identifier string) error

	// DownloadFrom fetches a remote resource into the cache. May return
	// *DownloadError, *IntegrityError or *ProcessingError.
	DownloadFrom(ctx context.Context, url string) error

	// Path returns the current location of the content: the staged file
	// path while cached, the durable storage key once stored, "" when
	// empty. Reconciliation compares these to decide whether an old file
	// may be deleted.
	Path() string

	// Open returns a reader over the current content.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Factory mints a fresh, empty Uploader. The Mounter calls it once per
// file slot.
type Factory func() Uploader
