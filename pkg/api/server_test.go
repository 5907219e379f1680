package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/filemount/filemount/pkg/api/auth"
	"github.com/filemount/filemount/pkg/blob"
	"github.com/filemount/filemount/pkg/mount"
	"github.com/filemount/filemount/pkg/record"
	"github.com/filemount/filemount/pkg/staging"
	"github.com/filemount/filemount/pkg/uploader"
)

func newTestRouter(t *testing.T, jwtService *auth.JWTService) (http.Handler, *record.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := record.NewStore(record.Config{
		Type:   record.DatabaseTypeSQLite,
		SQLite: record.SQLiteConfig{Path: filepath.Join(dir, "records.db")},
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	area, err := staging.New(filepath.Join(dir, "staging"), nil)
	if err != nil {
		t.Fatalf("staging.New failed: %v", err)
	}
	blobs, err := blob.NewFilesystemStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}

	factory := uploader.NewFactory(area, blobs)
	registry := mount.NewRegistry()
	if err := registry.Mount(AttrAvatar, mount.Options{
		Uploader:               factory,
		RemovePreviousOnUpdate: true,
	}); err != nil {
		t.Fatalf("Mount avatar failed: %v", err)
	}
	if err := registry.Mount(AttrGallery, mount.Options{
		Uploader: factory,
		Multiple: true,
	}); err != nil {
		t.Fatalf("Mount gallery failed: %v", err)
	}

	router := NewRouter(Deps{
		Store:         store,
		Registry:      registry,
		Blobs:         blobs,
		JWTService:    jwtService,
		MaxUploadSize: 32 << 20,
	})
	return router, store
}

func createAsset(t *testing.T, router http.Handler, name string) uint {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("create asset: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp assetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.ID
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write([]byte(content))
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	for _, path := range []string{"/health", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status %d", path, rec.Code)
		}
	}
}

func TestAvatarUploadLifecycle(t *testing.T) {
	router, store := newTestRouter(t, nil)
	id := createAsset(t, router, "profile")

	// Upload.
	body, contentType := multipartBody(t, "file", map[string]string{"me.png": "pixels"})
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v1/assets/%d/avatar", id), body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload avatar: status %d, body %s", rec.Code, rec.Body.String())
	}
	var upResp attachmentResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &upResp)
	if len(upResp.Identifiers) != 1 {
		t.Fatalf("upload identifiers = %v", upResp.Identifiers)
	}

	// The identifier is persisted.
	asset, err := store.GetAsset(req.Context(), id)
	if err != nil || asset == nil {
		t.Fatalf("GetAsset: %v, %v", asset, err)
	}
	if asset.Avatar != upResp.Identifiers[0] {
		t.Errorf("persisted avatar = %q, want %q", asset.Avatar, upResp.Identifiers[0])
	}

	// Download round trip.
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/assets/%d/avatar", id), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download avatar: status %d", rec.Code)
	}
	if got, _ := io.ReadAll(rec.Body); string(got) != "pixels" {
		t.Errorf("downloaded content = %q", got)
	}

	// Remove.
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/assets/%d/avatar", id), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove avatar: status %d, body %s", rec.Code, rec.Body.String())
	}

	asset, _ = store.GetAsset(req.Context(), id)
	if asset.Avatar != "" {
		t.Errorf("avatar column not cleared: %q", asset.Avatar)
	}

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/assets/%d/avatar", id), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("download removed avatar: status %d, want 404", rec.Code)
	}
}

func TestAvatarCacheCommitFlow(t *testing.T) {
	router, store := newTestRouter(t, nil)
	id := createAsset(t, router, "staged")

	// Stage without committing.
	body, contentType := multipartBody(t, "file", map[string]string{"draft.png": "draft"})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/assets/%d/avatar/cache", id), body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("cache avatar: status %d, body %s", rec.Code, rec.Body.String())
	}
	var cacheResp attachmentResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &cacheResp)
	if len(cacheResp.CacheTokens) != 1 {
		t.Fatalf("cache tokens = %v", cacheResp.CacheTokens)
	}

	// Nothing persisted yet.
	asset, _ := store.GetAsset(req.Context(), id)
	if asset.Avatar != "" {
		t.Fatalf("avatar persisted by cache: %q", asset.Avatar)
	}

	// Commit the token (simulating a form replay in a later request).
	commitBody, _ := json.Marshal(map[string]string{"cache_token": cacheResp.CacheTokens[0]})
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/assets/%d/avatar/commit", id), bytes.NewReader(commitBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("commit avatar: status %d, body %s", rec.Code, rec.Body.String())
	}
	var commitResp attachmentResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &commitResp)
	if len(commitResp.Identifiers) != 1 || commitResp.Identifiers[0] != cacheResp.Identifiers[0] {
		t.Errorf("committed identifiers = %v, staged were %v", commitResp.Identifiers, cacheResp.Identifiers)
	}

	asset, _ = store.GetAsset(req.Context(), id)
	if asset.Avatar != commitResp.Identifiers[0] {
		t.Errorf("persisted avatar = %q", asset.Avatar)
	}
}

func TestGalleryUpload(t *testing.T) {
	router, store := newTestRouter(t, nil)
	id := createAsset(t, router, "album")

	body, contentType := multipartBody(t, "files", map[string]string{
		"a.png": "a",
		"b.png": "b",
	})
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v1/assets/%d/gallery", id), body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload gallery: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp attachmentResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Identifiers) != 2 {
		t.Fatalf("gallery identifiers = %v", resp.Identifiers)
	}

	asset, _ := store.GetAsset(req.Context(), id)
	rec2 := record.AssetRecord{Asset: asset}
	ids, _ := rec2.ReadColumn(record.ColumnGallery)
	if len(ids) != 2 {
		t.Errorf("persisted gallery = %v", ids)
	}
}

func TestAssetDeleteRemovesFiles(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	id := createAsset(t, router, "doomed")

	body, contentType := multipartBody(t, "file", map[string]string{"x.png": "x"})
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v1/assets/%d/avatar", id), body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/assets/%d", id), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete asset: status %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/assets/%d", id), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted asset: status %d, want 404", rec.Code)
	}
}

func TestJWTAuthRequired(t *testing.T) {
	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret: "0123456789abcdef0123456789abcdef",
	})
	if err != nil {
		t.Fatalf("NewJWTService failed: %v", err)
	}
	router, _ := newTestRouter(t, jwtService)

	// Unauthenticated request is rejected.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: status %d, want 401", rec.Code)
	}

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health with auth enabled: status %d", rec.Code)
	}

	// A valid bearer token is accepted.
	token, err := jwtService.GenerateToken("tester")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated: status %d, body %s", rec.Code, rec.Body.String())
	}

	// A garbage token is rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status %d, want 401", rec.Code)
	}
}
