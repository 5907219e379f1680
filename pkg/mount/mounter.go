// Package mount implements the per-attribute file-mount lifecycle manager.
//
// A Mounter governs one mounted attribute on one record instance: it owns
// the uploader instances currently associated with the attribute, mediates
// caching vs. storing vs. removal, tracks pending-removal intent, and keeps
// the record's serialization column in sync with durable storage.
//
// State model:
//
//	assignment  → Cache        staged uploaders, reversible, no durable write
//	save        → Store        durable persistence, identifiers written back
//	checkbox    → SetRemove    intent only; the next Store performs Remove
//	form replay → SetCacheNames  rebuild staged state from tokens
//	record load → lazy derivation from the serialization column
//
// A Mounter holds no information that cannot be re-derived from the record's
// serialized identifiers, except in-flight (cached, not yet stored) files.
//
// Concurrency: a Mounter is request-scoped state for a single record
// instance and is not safe for concurrent use. The Registry that hands out
// Mounters is safe; the Mounter itself assumes one logical flow at a time,
// and every operation completes or fails before the next begins. A failed
// operation leaves the previously committed uploader set untouched.
package mount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/internal/telemetry"
	"github.com/filemount/filemount/pkg/record"
	"github.com/filemount/filemount/pkg/staging"
	"github.com/filemount/filemount/pkg/uploader"
)

// ErrFrozen is returned by mutating operations on a frozen record's mounter.
var ErrFrozen = errors.New("record is frozen")

// removalState is the tristate pending-removal flag. The zero value is
// "unset": the user has expressed no intent either way.
type removalState int

const (
	removalUnset removalState = iota
	removalMarked
	removalNotMarked
)

// Mounter manages the file lifecycle of a single (record, attribute) pair.
//
// The record reference is non-owning: the Mounter never outlives the logical
// scope of its record and is not responsible for the record's lifecycle.
type Mounter struct {
	rec       record.Record
	attribute string
	opts      Options

	uploaders  []uploader.Uploader
	remoteURLs []string

	removal removalState

	integrityErr  error
	processingErr error
	downloadErr   error

	// loaded is set once uploaders have been derived from the record's
	// serialization column (or replaced by an explicit operation).
	loaded bool
}

// NewMounter creates a mounter for one attribute of one record.
// Most callers should go through a Registry instead.
func NewMounter(rec record.Record, attribute string, opts Options) (*Mounter, error) {
	if rec == nil {
		return nil, fmt.Errorf("mount requires a record")
	}
	if err := opts.validate(attribute); err != nil {
		return nil, err
	}
	return &Mounter{rec: rec, attribute: attribute, opts: opts}, nil
}

// Attribute returns the mounted attribute name.
func (m *Mounter) Attribute() string { return m.attribute }

// Column returns the serialization column name.
func (m *Mounter) Column() string { return m.opts.Column }

// Record returns the owning record.
func (m *Mounter) Record() record.Record { return m.rec }

// ensureLoaded derives the uploader set from the record's serialization
// column on first access.
func (m *Mounter) ensureLoaded(ctx context.Context) error {
	if m.loaded {
		return nil
	}

	ids := m.ReadIdentifiers()
	ups := make([]uploader.Uploader, 0, len(ids))
	for _, id := range ids {
		u := m.opts.Uploader()
		if err := u.RetrieveFromStore(ctx, id); err != nil {
			return fmt.Errorf("failed to rebuild uploader for %q: %w", id, err)
		}
		ups = append(ups, u)
	}

	m.uploaders = ups
	m.remoteURLs = make([]string, len(ups))
	m.loaded = true
	return nil
}

// commit replaces the uploader set and the parallel remote-URL list.
func (m *Mounter) commit(ups []uploader.Uploader, urls []string) {
	if urls == nil {
		urls = make([]string, len(ups))
	}
	m.uploaders = ups
	m.remoteURLs = urls
	m.loaded = true
}

// Uploaders returns the uploader instances currently associated with the
// attribute, deriving them from the serialization column if needed.
func (m *Mounter) Uploaders(ctx context.Context) ([]uploader.Uploader, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return m.uploaders, nil
}

// IsPresent reports whether the attribute currently holds any file.
func (m *Mounter) IsPresent(ctx context.Context) (bool, error) {
	ups, err := m.Uploaders(ctx)
	if err != nil {
		return false, err
	}
	return len(ups) > 0, nil
}

// RemoteURLs returns the remote source URL per file slot ("" for files that
// were uploaded directly). The slice is parallel to Uploaders.
func (m *Mounter) RemoteURLs() []string {
	return m.remoteURLs
}

// ============================================================================
// Cache
// ============================================================================

// Cache stages the given payloads and replaces the current uploader set.
// No payloads means "clear the attribute" (pending a Store).
//
// A single-valued mount accepts at most one payload. On an integrity or
// processing failure, the corresponding ignore option decides between
// swallowing (slot left empty, error retained for inspection) and
// propagating; propagation leaves the previously committed set untouched.
// Caching never writes to durable storage.
func (m *Mounter) Cache(ctx context.Context, payloads ...uploader.Payload) error {
	ctx, span := telemetry.StartMountSpan(ctx, "cache", m.rec.Key(), m.attribute)
	start := time.Now()
	var opErr error
	defer func() {
		m.observe("cache", start, opErr)
		telemetry.EndSpan(span, opErr)
	}()

	if !m.opts.Multiple && len(payloads) > 1 {
		opErr = fmt.Errorf("mount %q is single-valued, got %d payloads", m.attribute, len(payloads))
		return opErr
	}
	if err := m.ensureLoaded(ctx); err != nil {
		opErr = err
		return opErr
	}

	fresh := make([]uploader.Uploader, 0, len(payloads))
	var integrityFailure, processingFailure error

	for _, p := range payloads {
		u := m.opts.Uploader()
		err := u.Cache(ctx, p)
		if err == nil {
			fresh = append(fresh, u)
			continue
		}

		swallowed, ierr, perr := m.classify(err)
		if !swallowed {
			opErr = err
			return opErr
		}
		if ierr != nil {
			integrityFailure = ierr
		}
		if perr != nil {
			processingFailure = perr
		}
	}

	m.commit(fresh, nil)
	m.removal = removalNotMarked
	m.integrityErr = integrityFailure
	m.processingErr = processingFailure

	m.recordFiles("cache", len(fresh))
	logger.Debug("attribute cached",
		"record", m.rec.Key(), "attribute", m.attribute, "files", len(fresh))
	return nil
}

// classify decides whether a cache/store failure is swallowed under the
// ignore options. Returns the retained integrity/processing error when
// swallowed.
func (m *Mounter) classify(err error) (swallowed bool, integrity, processing error) {
	switch {
	case uploader.IsIntegrity(err) && m.opts.IgnoreIntegrityErrors:
		return true, err, nil
	case uploader.IsProcessing(err) && m.opts.IgnoreProcessingErrors:
		return true, nil, err
	default:
		return false, nil, nil
	}
}

// ============================================================================
// Store
// ============================================================================

// Store persists every currently held uploader durably and writes the
// resulting identifiers to the record's serialization column.
//
// If the mount is marked for removal, Store performs Remove instead.
// Store is idempotent: repeating it with no intervening change re-writes the
// same identifiers and nothing else.
func (m *Mounter) Store(ctx context.Context) error {
	ctx, span := telemetry.StartMountSpan(ctx, "store", m.rec.Key(), m.attribute)
	start := time.Now()
	var opErr error
	defer func() {
		m.observe("store", start, opErr)
		telemetry.EndSpan(span, opErr)
	}()

	if m.removal == removalMarked {
		opErr = m.remove(ctx)
		return opErr
	}

	if m.rec.Frozen() {
		opErr = fmt.Errorf("cannot store %q: %w", m.attribute, ErrFrozen)
		return opErr
	}
	if err := m.ensureLoaded(ctx); err != nil {
		opErr = err
		return opErr
	}

	kept := make([]uploader.Uploader, 0, len(m.uploaders))
	urls := make([]string, 0, len(m.uploaders))
	var integrityFailure, processingFailure error

	for i, u := range m.uploaders {
		err := u.Store(ctx)
		if err == nil {
			kept = append(kept, u)
			urls = append(urls, m.remoteURL(i))
			continue
		}

		swallowed, ierr, perr := m.classify(err)
		if !swallowed {
			opErr = err
			return opErr
		}
		if ierr != nil {
			integrityFailure = ierr
		}
		if perr != nil {
			processingFailure = perr
		}
	}

	m.commit(kept, urls)
	m.rec.WriteColumn(m.opts.Column, m.Identifiers())
	m.removal = removalNotMarked
	m.integrityErr = integrityFailure
	m.processingErr = processingFailure

	m.recordFiles("store", len(kept))
	logger.Info("attribute stored",
		"record", m.rec.Key(), "attribute", m.attribute, "identifiers", len(kept))
	return nil
}

func (m *Mounter) remoteURL(i int) string {
	if i < len(m.remoteURLs) {
		return m.remoteURLs[i]
	}
	return ""
}

// ============================================================================
// Remove
// ============================================================================

// Remove deletes all held content, clears the serialization column and
// resets the pending-removal flag. Content deletion is irreversible.
// Deletion failures always propagate; no ignore option masks them.
func (m *Mounter) Remove(ctx context.Context) error {
	ctx, span := telemetry.StartMountSpan(ctx, "remove", m.rec.Key(), m.attribute)
	start := time.Now()
	var opErr error
	defer func() {
		m.observe("remove", start, opErr)
		telemetry.EndSpan(span, opErr)
	}()

	opErr = m.remove(ctx)
	return opErr
}

func (m *Mounter) remove(ctx context.Context) error {
	if m.rec.Frozen() {
		return fmt.Errorf("cannot remove %q: %w", m.attribute, ErrFrozen)
	}
	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}

	for _, u := range m.uploaders {
		if err := u.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove %q content: %w", m.attribute, err)
		}
	}

	m.commit(nil, nil)
	m.rec.WriteColumn(m.opts.Column, nil)
	m.removal = removalNotMarked

	logger.Info("attribute removed", "record", m.rec.Key(), "attribute", m.attribute)
	return nil
}

// SetRemove marks or unmarks the attribute for removal. Marking expresses
// intent only; the next Store acts on it.
func (m *Mounter) SetRemove(remove bool) {
	if remove {
		m.removal = removalMarked
	} else {
		m.removal = removalNotMarked
	}
}

// MarkedForRemoval reports whether the attribute is marked for removal.
func (m *Mounter) MarkedForRemoval() bool {
	return m.removal == removalMarked
}

// ============================================================================
// Identifiers
// ============================================================================

// Identifiers returns the identifier per currently held uploader. This is
// the value that gets persisted in the serialization column.
func (m *Mounter) Identifiers() []string {
	ids := make([]string, 0, len(m.uploaders))
	for _, u := range m.uploaders {
		if id := u.Identifier(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ReadIdentifiers re-derives the identifiers from the record's serialization
// column. Comparing this against Identifiers detects whether the serialized
// value actually changed (used by previous-value reconciliation).
func (m *Mounter) ReadIdentifiers() []string {
	ids, _ := m.rec.ReadColumn(m.opts.Column)
	return ids
}

// ============================================================================
// Cache tokens
// ============================================================================

// CacheNames serializes the cache state (not the stored state) as opaque
// tokens, one per cached uploader. A cached-but-not-yet-stored file survives
// a form round trip through these tokens.
func (m *Mounter) CacheNames() []string {
	names := make([]string, 0, len(m.uploaders))
	for _, u := range m.uploaders {
		if name := u.CacheName(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// SetCacheNames rebuilds the uploader set purely from cache tokens, without
// touching durable storage. Tokens that are malformed or no longer resolve
// (e.g. already swept) are skipped silently: a stale form replay must not
// fail the whole assignment. An empty token list is a no-op.
func (m *Mounter) SetCacheNames(ctx context.Context, tokens []string) error {
	valid := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if staging.ValidToken(tok) {
			valid = append(valid, tok)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	if !m.opts.Multiple && len(valid) > 1 {
		valid = valid[:1]
	}

	fresh := make([]uploader.Uploader, 0, len(valid))
	for _, tok := range valid {
		u := m.opts.Uploader()
		if err := u.RetrieveFromCache(ctx, tok); err != nil {
			if errors.Is(err, staging.ErrNotFound) {
				logger.Debug("stale cache token skipped", "attribute", m.attribute, "token", tok)
				continue
			}
			return fmt.Errorf("failed to restore cache token: %w", err)
		}
		fresh = append(fresh, u)
	}

	if len(fresh) == 0 {
		return nil
	}
	m.commit(fresh, nil)
	m.removal = removalNotMarked
	return nil
}

// ============================================================================
// Remote URLs
// ============================================================================

// SetRemoteURLs downloads each URL into a cache slot and replaces the
// current uploader set. Download failures follow the IgnoreDownloadErrors
// option; integrity/processing failures from validating the downloaded
// content follow their own options. The retained download error is
// inspectable via DownloadError.
func (m *Mounter) SetRemoteURLs(ctx context.Context, urls []string) error {
	ctx, span := telemetry.StartMountSpan(ctx, "download", m.rec.Key(), m.attribute)
	start := time.Now()
	var opErr error
	defer func() {
		m.observe("download", start, opErr)
		telemetry.EndSpan(span, opErr)
	}()

	if !m.opts.Multiple && len(urls) > 1 {
		opErr = fmt.Errorf("mount %q is single-valued, got %d urls", m.attribute, len(urls))
		return opErr
	}
	if err := m.ensureLoaded(ctx); err != nil {
		opErr = err
		return opErr
	}

	fresh := make([]uploader.Uploader, 0, len(urls))
	freshURLs := make([]string, 0, len(urls))
	var downloadFailure, integrityFailure, processingFailure error

	for _, url := range urls {
		u := m.opts.Uploader()
		err := u.DownloadFrom(ctx, url)
		if err == nil {
			fresh = append(fresh, u)
			freshURLs = append(freshURLs, url)
			continue
		}

		if uploader.IsDownload(err) && m.opts.IgnoreDownloadErrors {
			downloadFailure = err
			continue
		}
		swallowed, ierr, perr := m.classify(err)
		if !swallowed {
			opErr = err
			return opErr
		}
		if ierr != nil {
			integrityFailure = ierr
		}
		if perr != nil {
			processingFailure = perr
		}
	}

	m.commit(fresh, freshURLs)
	m.removal = removalNotMarked
	m.downloadErr = downloadFailure
	m.integrityErr = integrityFailure
	m.processingErr = processingFailure

	m.recordFiles("download", len(fresh))
	return nil
}

// ============================================================================
// Retained errors
// ============================================================================

// IntegrityError returns the retained integrity failure from the most recent
// cache/store operation, or nil. A successful operation of the same kind
// clears it.
func (m *Mounter) IntegrityError() error { return m.integrityErr }

// ProcessingError returns the retained processing failure, or nil.
func (m *Mounter) ProcessingError() error { return m.processingErr }

// DownloadError returns the retained download failure from the most recent
// SetRemoteURLs, or nil.
func (m *Mounter) DownloadError() error { return m.downloadErr }
