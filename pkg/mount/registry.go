package mount

import (
	"fmt"
	"sync"

	"github.com/filemount/filemount/pkg/record"
)

// Registry maps declared mounts (attribute name → options) to live Mounter
// instances, one per (record instance, attribute) pair.
//
// Go has no runtime method synthesis, so the declarative surface is an
// explicit registration step: declare each mounted attribute once with
// Mount, then obtain typed accessors per record via Attachment or
// AttachmentSet.
//
// Mounters are created lazily on first access and memoized for the lifetime
// of the record instance — except for frozen records, which get a fresh,
// unmemoized Mounter per call (no mutable memo against an immutable host).
// A Mounter is never persisted; it is a runtime controller only.
type Registry struct {
	mu     sync.Mutex
	mounts map[string]Options
	live   map[registryKey]*Mounter
}

type registryKey struct {
	record    string
	attribute string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		mounts: make(map[string]Options),
		live:   make(map[registryKey]*Mounter),
	}
}

// Mount declares a mounted attribute. Declaring the same attribute twice is
// an error.
func (r *Registry) Mount(attribute string, opts Options) error {
	if err := opts.validate(attribute); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mounts[attribute]; exists {
		return fmt.Errorf("attribute %q is already mounted", attribute)
	}
	r.mounts[attribute] = opts
	return nil
}

// Attributes returns the declared attribute names.
func (r *Registry) Attributes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	attrs := make([]string, 0, len(r.mounts))
	for attr := range r.mounts {
		attrs = append(attrs, attr)
	}
	return attrs
}

// Mounter returns the mounter for (rec, attribute), creating it on first
// access. Frozen records always get a fresh instance.
func (r *Registry) Mounter(rec record.Record, attribute string) (*Mounter, error) {
	r.mu.Lock()
	opts, declared := r.mounts[attribute]
	r.mu.Unlock()

	if !declared {
		return nil, fmt.Errorf("attribute %q is not mounted", attribute)
	}

	if rec.Frozen() {
		return NewMounter(rec, attribute, opts)
	}

	key := registryKey{record: rec.Key(), attribute: attribute}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.live[key]; ok {
		return m, nil
	}
	m, err := NewMounter(rec, attribute, opts)
	if err != nil {
		return nil, err
	}
	r.live[key] = m
	return m, nil
}

// Release discards all live mounters for a record instance. Call it when
// the record goes out of scope; in-flight cached state is dropped with it
// (the staging sweep reclaims the files).
func (r *Registry) Release(rec record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.live {
		if key.record == rec.Key() {
			delete(r.live, key)
		}
	}
}
