// Package http provides HTTP handlers for the snapshot service.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tanmay-xvx/controller-relay/snapshotService"
)

// Handler serves the controller snapshot.
type Handler struct {
	loader snapshotService.SnapshotLoader
}

// NewHandler creates a new HTTP handler with the specified loader.
func NewHandler(loader snapshotService.SnapshotLoader) *Handler {
	return &Handler{loader: loader}
}

// RegisterSnapshotRoutes registers GET /api/controllers with the chi router.
func RegisterSnapshotRoutes(r chi.Router, loader snapshotService.SnapshotLoader) {
	h := NewHandler(loader)
	r.Get("/api/controllers", h.Controllers)
}

// Controllers handles GET /api/controllers requests.
// Always returns 200; an unavailable feed yields an empty snapshot.
func (h *Handler) Controllers(w http.ResponseWriter, r *http.Request) {
	snap := h.loader.Load(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snap)
}
