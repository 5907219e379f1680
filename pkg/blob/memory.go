package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory Store for tests and ephemeral use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores the content under the given ID.
func (s *MemoryStore) Put(ctx context.Context, id string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read blob content: %w", err)
	}

	s.mu.Lock()
	s.blobs[id] = data
	s.mu.Unlock()

	return int64(len(data)), nil
}

// Open returns a reader over a copy of the stored bytes.
func (s *MemoryStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob. Missing blobs are ignored.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
	return nil
}

// Exists reports whether the blob is present.
func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	_, ok := s.blobs[id]
	s.mu.RUnlock()
	return ok, nil
}

// Size returns the blob size in bytes.
func (s *MemoryStore) Size(ctx context.Context, id string) (int64, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return int64(len(data)), nil
}

// Healthcheck always succeeds for the memory store.
func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	return nil
}

// Len returns the number of stored blobs. Intended for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

var _ Store = (*MemoryStore)(nil)
