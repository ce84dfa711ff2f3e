// Package handlers implements the HTTP endpoints of the scan API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/neural-scan/internal/constants"
	"github.com/kozaktomas/neural-scan/internal/gallery"
	"github.com/kozaktomas/neural-scan/internal/osint"
	"github.com/kozaktomas/neural-scan/internal/scan"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scan.ErrInvalidProbe),
		errors.Is(err, scan.ErrInvalidUpload),
		errors.Is(err, gallery.ErrInvalidName),
		errors.Is(err, gallery.ErrInvalidKey),
		errors.Is(err, osint.ErrEmptyTarget):
		return http.StatusBadRequest
	case errors.Is(err, gallery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scan.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, gallery.ErrRemoteUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, scan.ErrSearchDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with the status code it maps to. Internal
// errors are logged and replaced by a generic message.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", "error", err)
		respondError(w, status, "internal server error")
		return
	}
	logger.Warn(op+" rejected", "status", status, "error", err)
	respondError(w, status, err.Error())
}

// readUpload reads one multipart file field. The whole request is capped at
// MaxUploadSize.
func readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return nil, "", errors.New("failed to parse multipart form")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%s is required", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errors.New("failed to read uploaded file")
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%s is empty", field)
	}
	return data, header.Filename, nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Root answers the service banner at "/".
func Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"message": constants.Banner,
	})
}
