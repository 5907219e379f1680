package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/pkg/mount"
	"github.com/filemount/filemount/pkg/record"
	"github.com/filemount/filemount/pkg/uploader"
)

// Mounted attribute names served by the asset endpoints.
const (
	AttrAvatar  = "avatar"
	AttrGallery = "gallery"
)

// AssetHandler serves asset CRUD and the file lifecycle endpoints of the
// mounted avatar and gallery attributes.
type AssetHandler struct {
	store     *record.Store
	registry  *mount.Registry
	maxUpload int64
}

// NewAssetHandler creates the asset handler. The registry must have the
// avatar and gallery attributes mounted.
func NewAssetHandler(store *record.Store, registry *mount.Registry, maxUpload int64) *AssetHandler {
	return &AssetHandler{store: store, registry: registry, maxUpload: maxUpload}
}

// assetResponse is the JSON shape of an asset.
type assetResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	Gallery   []string  `json:"gallery,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// attachmentResponse reports the outcome of a file lifecycle operation.
// Warnings carry retained errors from swallowed failures (e.g. a rejected
// file under ignore_integrity_errors).
type attachmentResponse struct {
	Identifiers []string `json:"identifiers"`
	CacheTokens []string `json:"cache_tokens,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

func toAssetResponse(a *record.Asset) assetResponse {
	resp := assetResponse{
		ID:        a.ID,
		Name:      a.Name,
		Avatar:    a.Avatar,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	rec := record.AssetRecord{Asset: a}
	if ids, ok := rec.ReadColumn(record.ColumnGallery); ok {
		resp.Gallery = ids
	}
	return resp
}

// Create handles POST /assets.
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}

	asset := &record.Asset{Name: req.Name}
	if err := h.store.CreateAsset(r.Context(), asset); err != nil {
		internalServerError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toAssetResponse(asset))
}

// List handles GET /assets.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.ListAssets(r.Context())
	if err != nil {
		internalServerError(w, err.Error())
		return
	}

	resp := make([]assetResponse, 0, len(assets))
	for i := range assets {
		resp = append(resp, toAssetResponse(&assets[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /assets/{id}.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(asset))
}

// Delete handles DELETE /assets/{id}: removes all mounted files, then the
// row itself.
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	rec := h.store.NewAssetRecord(asset)
	defer h.registry.Release(rec)

	for _, attr := range []string{AttrAvatar, AttrGallery} {
		m, err := h.registry.Mounter(rec, attr)
		if err != nil {
			internalServerError(w, err.Error())
			return
		}
		if err := m.Remove(ctx); err != nil {
			writeMountError(w, err)
			return
		}
	}

	if err := h.store.DeleteAsset(ctx, asset.ID); err != nil {
		internalServerError(w, err.Error())
		return
	}
	writeNoContent(w)
}

// UploadAvatar handles PUT /assets/{id}/avatar: caches the uploaded file,
// stores it durably and persists the record in one step.
func (h *AssetHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	payloads, cleanup, ok := h.parseUpload(w, r, "file", 1)
	if !ok {
		return
	}
	defer cleanup()

	h.applyAndStore(w, r.Context(), asset, AttrAvatar, func(ctx context.Context, m *mount.Mounter) error {
		return m.Cache(ctx, payloads...)
	})
}

// CacheAvatar handles POST /assets/{id}/avatar/cache: stages the upload
// without committing, returning the cache token for a later commit. This is
// the "failed form round trip" flow: the client re-submits the token instead
// of the file.
func (h *AssetHandler) CacheAvatar(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	payloads, cleanup, ok := h.parseUpload(w, r, "file", 1)
	if !ok {
		return
	}
	defer cleanup()

	rec := h.store.NewAssetRecord(asset)
	defer h.registry.Release(rec)

	m, err := h.registry.Mounter(rec, AttrAvatar)
	if err != nil {
		internalServerError(w, err.Error())
		return
	}

	if err := m.Cache(ctx, payloads...); err != nil {
		writeMountError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, attachmentResponse{
		Identifiers: m.Identifiers(),
		CacheTokens: m.CacheNames(),
		Warnings:    retainedWarnings(m),
	})
}

// CommitAvatar handles POST /assets/{id}/avatar/commit: restores staged
// state from a cache token and stores it durably.
func (h *AssetHandler) CommitAvatar(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	var req struct {
		CacheToken string `json:"cache_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.CacheToken == "" {
		badRequest(w, "cache_token is required")
		return
	}

	h.applyAndStore(w, r.Context(), asset, AttrAvatar, func(ctx context.Context, m *mount.Mounter) error {
		return m.SetCacheNames(ctx, []string{req.CacheToken})
	})
}

// AvatarFromURL handles POST /assets/{id}/avatar/url: downloads a remote
// resource into the avatar and stores it.
func (h *AssetHandler) AvatarFromURL(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.URL == "" {
		badRequest(w, "url is required")
		return
	}

	h.applyAndStore(w, r.Context(), asset, AttrAvatar, func(ctx context.Context, m *mount.Mounter) error {
		return m.SetRemoteURLs(ctx, []string{req.URL})
	})
}

// DownloadAvatar handles GET /assets/{id}/avatar: streams the current
// content.
func (h *AssetHandler) DownloadAvatar(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	rec := h.store.NewAssetRecord(asset)
	defer h.registry.Release(rec)

	m, err := h.registry.Mounter(rec, AttrAvatar)
	if err != nil {
		internalServerError(w, err.Error())
		return
	}

	ups, err := m.Uploaders(ctx)
	if err != nil {
		writeMountError(w, err)
		return
	}
	if len(ups) == 0 {
		notFound(w, "asset has no avatar")
		return
	}

	u := ups[0]
	rc, err := u.Open(ctx)
	if err != nil {
		writeMountError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", u.Filename()))
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("avatar download interrupted", "asset", asset.ID, "error", err)
	}
}

// RemoveAvatar handles DELETE /assets/{id}/avatar: marks the attribute for
// removal and commits through the normal store path.
func (h *AssetHandler) RemoveAvatar(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	h.applyAndStore(w, r.Context(), asset, AttrAvatar, func(ctx context.Context, m *mount.Mounter) error {
		m.SetRemove(true)
		return nil
	})
}

// UploadGallery handles PUT /assets/{id}/gallery: replaces the gallery with
// the uploaded file set.
func (h *AssetHandler) UploadGallery(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	payloads, cleanup, ok := h.parseUpload(w, r, "files", 0)
	if !ok {
		return
	}
	defer cleanup()

	h.applyAndStore(w, r.Context(), asset, AttrGallery, func(ctx context.Context, m *mount.Mounter) error {
		return m.Cache(ctx, payloads...)
	})
}

// GalleryFromURLs handles POST /assets/{id}/gallery/urls.
func (h *AssetHandler) GalleryFromURLs(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if len(req.URLs) == 0 {
		badRequest(w, "urls is required")
		return
	}

	h.applyAndStore(w, r.Context(), asset, AttrGallery, func(ctx context.Context, m *mount.Mounter) error {
		return m.SetRemoteURLs(ctx, req.URLs)
	})
}

// RemoveGallery handles DELETE /assets/{id}/gallery.
func (h *AssetHandler) RemoveGallery(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	h.applyAndStore(w, r.Context(), asset, AttrGallery, func(ctx context.Context, m *mount.Mounter) error {
		m.SetRemove(true)
		return nil
	})
}

// loadAsset resolves the {id} URL parameter to an asset row. Writes the
// error response itself when the asset cannot be loaded.
func (h *AssetHandler) loadAsset(w http.ResponseWriter, r *http.Request) (*record.Asset, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		badRequest(w, "invalid asset id")
		return nil, false
	}

	asset, err := h.store.GetAsset(r.Context(), uint(id))
	if err != nil {
		internalServerError(w, err.Error())
		return nil, false
	}
	if asset == nil {
		notFound(w, fmt.Sprintf("asset %d not found", id))
		return nil, false
	}
	return asset, true
}

// parseUpload extracts payloads from a multipart request. maxFiles of zero
// means unlimited. The returned cleanup closes the opened part readers.
func (h *AssetHandler) parseUpload(w http.ResponseWriter, r *http.Request, field string, maxFiles int) ([]uploader.Payload, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, fmt.Sprintf("invalid multipart request: %v", err))
		return nil, nil, false
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		badRequest(w, fmt.Sprintf("multipart field %q is required", field))
		return nil, nil, false
	}
	if maxFiles > 0 && len(headers) > maxFiles {
		badRequest(w, fmt.Sprintf("field %q accepts at most %d file(s)", field, maxFiles))
		return nil, nil, false
	}

	var open []multipart.File
	cleanup := func() {
		for _, f := range open {
			_ = f.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}

	payloads := make([]uploader.Payload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			internalServerError(w, fmt.Sprintf("failed to open uploaded file: %v", err))
			return nil, nil, false
		}
		open = append(open, f)
		payloads = append(payloads, uploader.Payload{Filename: fh.Filename, Content: f})
	}

	return payloads, cleanup, true
}

// applyAndStore runs one mutation against a mounted attribute and commits
// it: snapshot the previous state, mutate, store, save the record, then
// clean up superseded files.
func (h *AssetHandler) applyAndStore(
	w http.ResponseWriter,
	ctx context.Context,
	asset *record.Asset,
	attribute string,
	mutate func(context.Context, *mount.Mounter) error,
) {
	rec := h.store.NewAssetRecord(asset)
	defer h.registry.Release(rec)

	m, err := h.registry.Mounter(rec, attribute)
	if err != nil {
		internalServerError(w, err.Error())
		return
	}

	prev, err := m.SnapshotPrevious(ctx)
	if err != nil {
		internalServerError(w, err.Error())
		return
	}

	if err := mutate(ctx, m); err != nil {
		writeMountError(w, err)
		return
	}

	if err := m.Store(ctx); err != nil {
		writeMountError(w, err)
		return
	}

	if err := h.store.SaveAsset(ctx, asset); err != nil {
		internalServerError(w, err.Error())
		return
	}

	if err := m.CleanupPrevious(ctx, prev); err != nil {
		// The update itself is committed; a failed cleanup only leaks the
		// superseded file.
		logger.Warn("failed to clean up superseded files",
			"asset", asset.ID, "attribute", attribute, "error", err)
	}

	writeJSON(w, http.StatusOK, attachmentResponse{
		Identifiers: m.Identifiers(),
		Warnings:    retainedWarnings(m),
	})
}

// retainedWarnings collects the mounter's retained errors as strings.
func retainedWarnings(m *mount.Mounter) []string {
	var warnings []string
	for _, err := range []error{m.IntegrityError(), m.ProcessingError(), m.DownloadError()} {
		if err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	return warnings
}
