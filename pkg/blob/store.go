// Package blob defines the durable content store consumed by uploaders.
//
// A Store manages only raw file bytes. It does NOT manage:
//   - Which record or attribute references a blob → handled by pkg/mount
//   - Staged (not yet stored) content → handled by pkg/staging
//   - Validation or processing of content → handled by pkg/uploader
//
// Blob Identifiers:
// A blob ID is an opaque string, unique within the store. Uploaders mint IDs
// and persist them through the record's serialization column; only the store
// implementation interprets the ID (as a path, an object key, a map key, ...).
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent writes to the same ID are last-write-wins.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates the requested blob does not exist in the store.
var ErrNotFound = errors.New("blob not found")

// Store provides durable storage for file content.
type Store interface {
	// Put writes the full content of r under the given ID, replacing any
	// existing blob with the same ID. Returns the number of bytes written.
	Put(ctx context.Context, id string, r io.Reader) (int64, error)

	// Open returns a reader for the blob. The caller must close it.
	// Returns ErrNotFound if the blob does not exist.
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, id string) error

	// Exists reports whether the blob is present.
	Exists(ctx context.Context, id string) (bool, error)

	// Size returns the blob size in bytes.
	// Returns ErrNotFound if the blob does not exist.
	Size(ctx context.Context, id string) (int64, error)

	// Healthcheck verifies the store is reachable and usable.
	Healthcheck(ctx context.Context) error
}

// URLStore is an optional interface for stores that can produce a public
// or presigned URL for a blob. The filesystem store does not implement it.
type URLStore interface {
	// URL returns a URL from which the blob can be fetched directly.
	URL(ctx context.Context, id string) (string, error)
}
