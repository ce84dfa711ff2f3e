package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/neural-scan/internal/osint"
)

// Investigator runs OSINT investigations.
type Investigator interface {
	Investigate(ctx context.Context, target string) (osint.Report, error)
}

// OSINTHandler handles target investigations.
type OSINTHandler struct {
	service Investigator
	logger  *slog.Logger
}

// NewOSINTHandler creates a new OSINT handler.
func NewOSINTHandler(service Investigator, logger *slog.Logger) *OSINTHandler {
	return &OSINTHandler{service: service, logger: orDiscard(logger)}
}

type investigateRequest struct {
	Query string `json:"query"`
}

// Investigate searches public sources for the target in the "query" field.
func (h *OSINTHandler) Investigate(w http.ResponseWriter, r *http.Request) {
	var req investigateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	report, err := h.service.Investigate(r.Context(), req.Query)
	if err != nil {
		respondServiceError(w, h.logger, "investigate "+sanitizeForLog(req.Query), err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
