package mount

import (
	"context"
	"slices"
	"time"

	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/internal/telemetry"
	"github.com/filemount/filemount/pkg/uploader"
)

// Previous-value reconciliation: when an update changes the serialization
// column, the files referenced by the OLD column value become unreachable
// and may be deleted — but only under conditions that rule out deleting
// content that is still in use:
//
//  1. The "before" state is captured from the record's backing store, not
//     the in-memory instance, so stale in-memory mutations cannot fake a
//     previous value (SnapshotPrevious, called before the column changes).
//  2. The column must actually have changed (compared after commit).
//  3. Old paths equal to any current path are never deleted: two attributes
//     (or two rows) can legitimately resolve to the same stored file.
//
// WHEN to snapshot is the persistence layer's policy, not the core's: call
// SnapshotPrevious before writing the update and CleanupPrevious after it
// commits. The demo HTTP API wires this around its save flow.

// PreviousState is the captured pre-update state of one mounted attribute.
type PreviousState struct {
	identifiers []string
	uploaders   []uploader.Uploader
}

// Identifiers returns the captured identifier list.
func (p *PreviousState) Identifiers() []string {
	if p == nil {
		return nil
	}
	return p.identifiers
}

// SnapshotPrevious captures the attribute's previously persisted state by
// re-reading the record from its backing store. Returns nil (no error) for
// records that were never persisted — there is nothing to clean up.
func (m *Mounter) SnapshotPrevious(ctx context.Context) (*PreviousState, error) {
	if !m.opts.RemovePreviousOnUpdate {
		return nil, nil
	}

	fresh, err := m.rec.Reload(ctx)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, nil
	}

	ids, _ := fresh.ReadColumn(m.opts.Column)
	if len(ids) == 0 {
		return nil, nil
	}

	ups := make([]uploader.Uploader, 0, len(ids))
	for _, id := range ids {
		u := m.opts.Uploader()
		if err := u.RetrieveFromStore(ctx, id); err != nil {
			return nil, err
		}
		ups = append(ups, u)
	}

	return &PreviousState{identifiers: ids, uploaders: ups}, nil
}

// CleanupPrevious deletes the files captured by SnapshotPrevious, provided
// the serialization column actually changed and each old path differs from
// every current path. Call it after the update has committed; the snapshot
// is spent afterwards either way.
func (m *Mounter) CleanupPrevious(ctx context.Context, prev *PreviousState) error {
	if prev == nil || !m.opts.RemovePreviousOnUpdate {
		return nil
	}

	ctx, span := telemetry.StartMountSpan(ctx, "cleanup_previous", m.rec.Key(), m.attribute)
	start := time.Now()
	var opErr error
	defer func() {
		m.observe("cleanup_previous", start, opErr)
		telemetry.EndSpan(span, opErr)
	}()

	// The column as persisted now. If it matches the snapshot, the update
	// did not touch this attribute and nothing may be deleted.
	current := m.ReadIdentifiers()
	if slices.Equal(current, prev.identifiers) {
		return nil
	}

	if err := m.ensureLoaded(ctx); err != nil {
		opErr = err
		return opErr
	}

	currentPaths := make(map[string]struct{}, len(m.uploaders))
	for _, u := range m.uploaders {
		if p := u.Path(); p != "" {
			currentPaths[p] = struct{}{}
		}
	}

	for _, old := range prev.uploaders {
		path := old.Path()
		if path == "" {
			continue
		}
		if _, inUse := currentPaths[path]; inUse {
			// Identical paths by coincidence must never be deleted.
			continue
		}
		if err := old.Remove(ctx); err != nil {
			opErr = err
			return opErr
		}
		logger.Debug("superseded file removed",
			"record", m.rec.Key(), "attribute", m.attribute, "path", path)
	}

	return nil
}
