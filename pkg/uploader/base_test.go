package uploader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/filemount/filemount/pkg/blob"
	"github.com/filemount/filemount/pkg/staging"
)

func newCollaborators(t *testing.T) (*staging.Area, *blob.MemoryStore) {
	t.Helper()
	area, err := staging.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("staging.New failed: %v", err)
	}
	return area, blob.NewMemoryStore()
}

func TestCacheThenStore(t *testing.T) {
	area, store := newCollaborators(t)
	ctx := context.Background()

	u := NewBase(area, store)
	err := u.Cache(ctx, Payload{Filename: "avatar.png", Content: strings.NewReader("img")})
	if err != nil {
		t.Fatalf("Cache failed: %v", err)
	}

	if u.Identifier() == "" {
		t.Error("identifier should be set after cache")
	}
	if u.CacheName() == "" {
		t.Error("cache name should be set after cache")
	}
	if u.Filename() != "avatar.png" {
		t.Errorf("Filename = %q", u.Filename())
	}

	idBefore := u.Identifier()
	if err := u.Store(ctx); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if u.Identifier() != idBefore {
		t.Errorf("identifier changed across store: %q -> %q", idBefore, u.Identifier())
	}
	if u.CacheName() != "" {
		t.Error("cache name should be empty after store")
	}

	ok, _ := store.Exists(ctx, u.Identifier())
	if !ok {
		t.Error("blob missing after store")
	}

	r, err := u.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = r.Close() }()
	data, _ := io.ReadAll(r)
	if string(data) != "img" {
		t.Errorf("content = %q", data)
	}
}

func TestStoreIdempotent(t *testing.T) {
	area, store := newCollaborators(t)
	ctx := context.Background()

	u := NewBase(area, store)
	_ = u.Cache(ctx, Payload{Filename: "f.txt", Content: strings.NewReader("x")})
	if err := u.Store(ctx); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := u.Store(ctx); err != nil {
		t.Errorf("second Store should be a no-op, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d blobs, want 1", store.Len())
	}
}

func TestCacheTokenRoundTrip(t *testing.T) {
	area, store := newCollaborators(t)
	ctx := context.Background()

	original := NewBase(area, store)
	_ = original.Cache(ctx, Payload{Filename: "doc.pdf", Content: strings.NewReader("pdf")})
	token := original.CacheName()

	restored := NewBase(area, store)
	if err := restored.RetrieveFromCache(ctx, token); err != nil {
		t.Fatalf("RetrieveFromCache failed: %v", err)
	}

	if restored.Identifier() != original.Identifier() {
		t.Errorf("identifier mismatch after round trip: %q vs %q",
			restored.Identifier(), original.Identifier())
	}
	if restored.Filename() != "doc.pdf" {
		t.Errorf("Filename = %q", restored.Filename())
	}
}

func TestValidatorRejectsContent(t *testing.T) {
	area, store := newCollaborators(t)
	ctx := context.Background()

	u := NewBase(area, store, WithValidator(func(entry staging.Entry, open func() (io.ReadCloser, error)) error {
		if !strings.HasSuffix(entry.Filename, ".png") {
			return fmt.Errorf("extension not allowed")
		}
		return nil
	}))

	err := u.Cache(ctx, Payload{Filename: "evil.exe", Content: strings.NewReader("x")})
	if !IsIntegrity(err) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if u.Identifier() != "" {
		t.Error("uploader should stay empty after rejected cache")
	}

	// Rejected content must not linger in the staging area.
	if _, err := area.Sweep(ctx, 0); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
}

func TestProcessorFailure(t *testing.T) {
	area, store := newCollaborators(t)
	ctx := context.Background()

	u := NewBase(area, store, WithProcessor(func(ctx context.Context, stagedPath string) error {
		return fmt.Errorf("resize failed")
	}))

	err := u.Cache(ctx, Payload{Filename: "a.png", Content: strings.NewReader("x")})
	if !IsProcessing(err) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
}

func TestRemoveStored(t *testing.T) {
	area, store := newCollaborators(t)
	ctx := context.Background()

	u := NewBase(area, store)
	_ = u.Cache(ctx, Payload{Filename: "f.txt", Content: strings.NewReader("x")})
	_ = u.Store(ctx)
	id := u.Identifier()

	if err := u.Remove(ctx); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if u.Identifier() != "" || u.Path() != "" {
		t.Error("uploader not reset after remove")
	}

	ok, _ := store.Exists(ctx, id)
	if ok {
		t.Error("blob survived remove")
	}
}

func TestDownloadFrom(t *testing.T) {
	area, store := newCollaborators(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote bytes"))
	}))
	defer srv.Close()

	u := NewBase(area, store)
	if err := u.DownloadFrom(ctx, srv.URL+"/files/pic.jpg"); err != nil {
		t.Fatalf("DownloadFrom failed: %v", err)
	}
	if u.Filename() != "pic.jpg" {
		t.Errorf("Filename = %q, want pic.jpg", u.Filename())
	}

	r, err := u.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = r.Close() }()
	data, _ := io.ReadAll(r)
	if string(data) != "remote bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestDownloadFromBadStatus(t *testing.T) {
	area, store := newCollaborators(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	u := NewBase(area, store)
	err := u.DownloadFrom(context.Background(), srv.URL+"/missing")
	if !IsDownload(err) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	integrity := &IntegrityError{Err: fmt.Errorf("bad")}
	processing := &ProcessingError{Err: fmt.Errorf("bad")}
	download := &DownloadError{URL: "http://x", Err: fmt.Errorf("bad")}

	if !IsIntegrity(integrity) || IsIntegrity(processing) || IsIntegrity(download) {
		t.Error("IsIntegrity misclassifies")
	}
	if !IsProcessing(processing) || IsProcessing(integrity) {
		t.Error("IsProcessing misclassifies")
	}
	if !IsDownload(download) || IsDownload(integrity) {
		t.Error("IsDownload misclassifies")
	}

	wrapped := fmt.Errorf("outer: %w", integrity)
	if !IsIntegrity(wrapped) {
		t.Error("IsIntegrity should see through wrapping")
	}
}

func TestURLRequiresCapableStore(t *testing.T) {
	area, store := newCollaborators(t)
	ctx := context.Background()

	u := NewBase(area, store)
	if err := u.Cache(ctx, Payload{Filename: "a.png", Content: strings.NewReader("x")}); err != nil {
		t.Fatalf("Cache failed: %v", err)
	}

	// Cached content has no public URL yet.
	if got, err := u.URL(ctx); err != nil || got != "" {
		t.Errorf("URL while cached = (%q, %v), want empty", got, err)
	}

	if err := u.Store(ctx); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// The memory store cannot produce URLs either.
	if got, err := u.URL(ctx); err != nil || got != "" {
		t.Errorf("URL on memory store = (%q, %v), want empty", got, err)
	}
}
