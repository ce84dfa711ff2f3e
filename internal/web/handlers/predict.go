package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/neural-scan/internal/identity"
	"github.com/kozaktomas/neural-scan/internal/matcher"
	"github.com/kozaktomas/neural-scan/internal/scan"
)

// Identifier identifies probe images against the gallery.
type Identifier interface {
	Identify(ctx context.Context, probe []byte) (scan.Identification, error)
}

// PredictHandler handles probe identification.
type PredictHandler struct {
	service Identifier
	logger  *slog.Logger
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(service Identifier, logger *slog.Logger) *PredictHandler {
	return &PredictHandler{service: service, logger: orDiscard(logger)}
}

// PredictResponse keeps the legacy identified_name/confidence/system_log
// fields alongside the structured verdict.
type PredictResponse struct {
	IdentifiedName string              `json:"identified_name"`
	Confidence     string              `json:"confidence"`
	SystemLog      string              `json:"system_log"`
	Verdict        identity.Verdict    `json:"verdict"`
	Candidates     []matcher.Candidate `json:"candidates"`
	Fingerprint    string              `json:"gallery_fingerprint"`
}

const inferenceOK = "Inference successful."

// Predict identifies the person in the uploaded "file".
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	probe, filename, err := readUpload(w, r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Identify(r.Context(), probe)
	if err != nil {
		respondServiceError(w, h.logger, "identify "+sanitizeForLog(filename), err)
		return
	}

	systemLog := result.Verdict.Note
	if systemLog == "" {
		systemLog = inferenceOK
	}
	respondJSON(w, http.StatusOK, PredictResponse{
		IdentifiedName: result.Verdict.Name,
		Confidence:     result.Verdict.Percent(),
		SystemLog:      systemLog,
		Verdict:        result.Verdict,
		Candidates:     result.Candidates,
		Fingerprint:    result.Fingerprint,
	})
}
