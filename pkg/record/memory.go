package record

import (
	"context"
	"sync"
)

// MemoryBackend holds persisted column snapshots for MemoryRecord instances.
// It stands in for a database in tests: Save captures the current columns,
// Reload returns the last saved snapshot.
type MemoryBackend struct {
	mu   sync.RWMutex
	rows map[string]map[string][]string
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[string]map[string][]string)}
}

// MemoryRecord is an in-memory Record bound to a MemoryBackend.
type MemoryRecord struct {
	key     string
	backend *MemoryBackend
	frozen  bool

	mu      sync.RWMutex
	columns map[string][]string
}

// NewRecord creates a record with the given key. The record starts
// unpersisted; call Save to snapshot it into the backend.
func (b *MemoryBackend) NewRecord(key string) *MemoryRecord {
	return &MemoryRecord{
		key:     key,
		backend: b,
		columns: make(map[string][]string),
	}
}

// Save snapshots the record's columns into the backend.
func (b *MemoryBackend) Save(r *MemoryRecord) {
	r.mu.RLock()
	snapshot := make(map[string][]string, len(r.columns))
	for col, ids := range r.columns {
		snapshot[col] = append([]string(nil), ids...)
	}
	r.mu.RUnlock()

	b.mu.Lock()
	b.rows[r.key] = snapshot
	b.mu.Unlock()
}

// Load returns a fresh record for the last saved snapshot, or nil if the
// key was never saved.
func (b *MemoryBackend) Load(key string) *MemoryRecord {
	b.mu.RLock()
	snapshot, ok := b.rows[key]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	r := b.NewRecord(key)
	for col, ids := range snapshot {
		r.columns[col] = append([]string(nil), ids...)
	}
	return r
}

// Key implements Record.
func (r *MemoryRecord) Key() string { return r.key }

// ReadColumn implements Record.
func (r *MemoryRecord) ReadColumn(column string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids, ok := r.columns[column]
	if !ok {
		return nil, false
	}
	return append([]string(nil), ids...), true
}

// WriteColumn implements Record.
func (r *MemoryRecord) WriteColumn(column string, identifiers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(identifiers) == 0 {
		r.columns[column] = nil
		return
	}
	r.columns[column] = append([]string(nil), identifiers...)
}

// Frozen implements Record.
func (r *MemoryRecord) Frozen() bool { return r.frozen }

// Freeze marks the record immutable.
func (r *MemoryRecord) Freeze() { r.frozen = true }

// Reload implements Record.
func (r *MemoryRecord) Reload(ctx context.Context) (Record, error) {
	loaded := r.backend.Load(r.key)
	if loaded == nil {
		return nil, nil
	}
	return loaded, nil
}

var _ Record = (*MemoryRecord)(nil)
