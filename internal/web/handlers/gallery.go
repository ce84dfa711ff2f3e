package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/neural-scan/internal/gallery"
)

// GalleryService manages the reference gallery.
type GalleryService interface {
	Enroll(ctx context.Context, name, filename string, content []byte) (gallery.Entry, error)
	Remove(ctx context.Context, key string) error
	Sync(ctx context.Context) (gallery.SyncResult, error)
	Entries() ([]gallery.Entry, error)
}

// GalleryHandler handles gallery endpoints.
type GalleryHandler struct {
	service GalleryService
	logger  *slog.Logger
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(service GalleryService, logger *slog.Logger) *GalleryHandler {
	return &GalleryHandler{service: service, logger: orDiscard(logger)}
}

// Upload enrolls the multipart "file" under the identity in "name".
func (h *GalleryHandler) Upload(w http.ResponseWriter, r *http.Request) {
	content, filename, err := readUpload(w, r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	entry, err := h.service.Enroll(r.Context(), name, filename, content)
	if err != nil {
		respondServiceError(w, h.logger, "enroll "+sanitizeForLog(name), err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"status":  "success",
		"message": "Identity " + entry.DisplayName + " added to the gallery.",
		"entry":   entry,
	})
}

// List returns the local gallery entries.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Entries()
	if err != nil {
		respondServiceError(w, h.logger, "list gallery", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Delete removes one entry from the remote and local gallery.
func (h *GalleryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.Remove(r.Context(), key); err != nil {
		respondServiceError(w, h.logger, "remove "+sanitizeForLog(key), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync reconciles the local gallery with the remote source of truth.
func (h *GalleryHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Sync(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "sync gallery", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
