package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/filemount/filemount/pkg/api/auth"
	"github.com/filemount/filemount/pkg/blob"
	"github.com/filemount/filemount/pkg/metrics"
	"github.com/filemount/filemount/pkg/mount"
	"github.com/filemount/filemount/pkg/record"
)

// Deps are the collaborators the router serves.
type Deps struct {
	// Store is the record persistence layer.
	Store *record.Store

	// Registry holds the mounted attributes.
	Registry *mount.Registry

	// Blobs is the durable blob store (used by readiness checks).
	Blobs blob.Store

	// JWTService authenticates API requests. Nil disables authentication.
	JWTService *auth.JWTService

	// MaxUploadSize caps multipart request bodies, in bytes.
	MaxUploadSize int64
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET  /health                          - Liveness probe
//   - GET  /health/ready                    - Readiness probe
//   - GET  /metrics                         - Prometheus scrape (when enabled)
//   - POST /api/v1/assets                   - Create asset
//   - GET  /api/v1/assets                   - List assets
//   - GET  /api/v1/assets/{id}              - Get asset
//   - DELETE /api/v1/assets/{id}            - Delete asset and its files
//   - PUT  /api/v1/assets/{id}/avatar       - Upload and store avatar
//   - GET  /api/v1/assets/{id}/avatar       - Download avatar content
//   - DELETE /api/v1/assets/{id}/avatar     - Remove avatar
//   - POST /api/v1/assets/{id}/avatar/cache  - Stage avatar, return token
//   - POST /api/v1/assets/{id}/avatar/commit - Commit a staged token
//   - POST /api/v1/assets/{id}/avatar/url    - Download avatar from URL
//   - PUT  /api/v1/assets/{id}/gallery      - Upload and store gallery set
//   - DELETE /api/v1/assets/{id}/gallery    - Remove gallery
//   - POST /api/v1/assets/{id}/gallery/urls - Download gallery from URLs
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(httpMetrics(metrics.NewHTTPMetrics()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	healthHandler := NewHealthHandler(deps.Store, deps.Blobs)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if mh := metrics.Handler(); mh != nil {
		r.Method(http.MethodGet, "/metrics", mh)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	assetHandler := NewAssetHandler(deps.Store, deps.Registry, deps.MaxUploadSize)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jwtAuth(deps.JWTService))

		r.Route("/assets", func(r chi.Router) {
			r.Post("/", assetHandler.Create)
			r.Get("/", assetHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", assetHandler.Get)
				r.Delete("/", assetHandler.Delete)

				r.Route("/avatar", func(r chi.Router) {
					r.Put("/", assetHandler.UploadAvatar)
					r.Get("/", assetHandler.DownloadAvatar)
					r.Delete("/", assetHandler.RemoveAvatar)
					r.Post("/cache", assetHandler.CacheAvatar)
					r.Post("/commit", assetHandler.CommitAvatar)
					r.Post("/url", assetHandler.AvatarFromURL)
				})

				r.Route("/gallery", func(r chi.Router) {
					r.Put("/", assetHandler.UploadGallery)
					r.Delete("/", assetHandler.RemoveGallery)
					r.Post("/urls", assetHandler.GalleryFromURLs)
				})
			})
		})
	})

	return r
}
