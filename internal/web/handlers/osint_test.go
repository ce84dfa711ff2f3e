package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/neural-scan/internal/osint"
	"github.com/kozaktomas/neural-scan/internal/scan"
)

func TestOSINTHandler_Investigate(t *testing.T) {
	svc := &fakeService{report: osint.Report{
		Target:      "Ada Lovelace",
		Found:       true,
		Description: "English mathematician.",
		Summary:     "1 indexed results found for 'Ada Lovelace'.",
		Links:       []osint.Snippet{{Title: "Ada", Link: "https://en.wikipedia.org/wiki/Ada_Lovelace"}},
	}}
	handler := NewOSINTHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/osint/", strings.NewReader(`{"query":"Ada Lovelace"}`))
	recorder := httptest.NewRecorder()
	handler.Investigate(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var report osint.Report
	parseJSONResponse(t, recorder, &report)
	if !report.Found || len(report.Links) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if svc.gotTarget != "Ada Lovelace" {
		t.Errorf("expected target 'Ada Lovelace', got '%s'", svc.gotTarget)
	}
}

func TestOSINTHandler_Investigate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		expected int
		message  string
	}{
		{"invalid json", `{"query":`, nil, http.StatusBadRequest, errInvalidRequestBody},
		{"empty query", `{"query":""}`, osint.ErrEmptyTarget, http.StatusBadRequest, "query empty"},
		{"disabled", `{"query":"x"}`, scan.ErrSearchDisabled, http.StatusServiceUnavailable, "osint search is not configured"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewOSINTHandler(&fakeService{err: tc.err}, nil)

			recorder := httptest.NewRecorder()
			handler.Investigate(recorder, httptest.NewRequest(http.MethodPost, "/osint", strings.NewReader(tc.body)))

			assertStatusCode(t, recorder, tc.expected)
			assertJSONError(t, recorder, tc.message)
		})
	}
}
