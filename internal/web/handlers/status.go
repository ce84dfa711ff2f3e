package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kozaktomas/neural-scan/internal/audit"
	"github.com/kozaktomas/neural-scan/internal/constants"
	"github.com/kozaktomas/neural-scan/internal/scan"
)

// StatusService reports service state and past decisions.
type StatusService interface {
	Status() (scan.Status, error)
	RecentDecisions(ctx context.Context, limit int) ([]audit.Record, error)
}

// StatusHandler handles status and audit endpoints.
type StatusHandler struct {
	service StatusService
	logger  *slog.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(service StatusService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{service: service, logger: orDiscard(logger)}
}

// Status returns gallery, cache and last-sync state.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status()
	if err != nil {
		respondServiceError(w, h.logger, "status", err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// Audit returns the most recent identity verdicts.
func (h *StatusHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultAuditLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, constants.MaxAuditLimit)
	}

	records, err := h.service.RecentDecisions(r.Context(), limit)
	if err != nil {
		respondServiceError(w, h.logger, "audit", err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"decisions": records,
		"count":     len(records),
	})
}
