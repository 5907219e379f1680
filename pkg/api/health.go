package api

import (
	"net/http"
	"time"

	"github.com/filemount/filemount/pkg/blob"
	"github.com/filemount/filemount/pkg/record"
)

// healthResponse is the JSON shape of health endpoints.
type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store *record.Store
	blobs blob.Store
}

// NewHealthHandler creates the health handler. Either dependency may be nil;
// nil dependencies are skipped in readiness checks.
func NewHealthHandler(store *record.Store, blobs blob.Store) *HealthHandler {
	return &HealthHandler{store: store, blobs: blobs}
}

// Liveness handles GET /health: the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// Readiness handles GET /health/ready: the backing stores answer.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string)
	healthy := true

	if h.store != nil {
		if err := h.store.Healthcheck(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if h.blobs != nil {
		if err := h.blobs.Healthcheck(ctx); err != nil {
			checks["blob_store"] = err.Error()
			healthy = false
		} else {
			checks["blob_store"] = "ok"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
