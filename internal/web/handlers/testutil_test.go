package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/neural-scan/internal/audit"
	"github.com/kozaktomas/neural-scan/internal/gallery"
	"github.com/kozaktomas/neural-scan/internal/osint"
	"github.com/kozaktomas/neural-scan/internal/scan"
)

// fakeService implements every handler service interface with canned results.
type fakeService struct {
	identification scan.Identification
	entry          gallery.Entry
	entries        []gallery.Entry
	syncResult     gallery.SyncResult
	report         osint.Report
	status         scan.Status
	records        []audit.Record
	err            error

	gotProbe    []byte
	gotName     string
	gotFilename string
	gotKey      string
	gotTarget   string
	gotLimit    int
}

func (f *fakeService) Identify(_ context.Context, probe []byte) (scan.Identification, error) {
	f.gotProbe = probe
	return f.identification, f.err
}

func (f *fakeService) Enroll(_ context.Context, name, filename string, content []byte) (gallery.Entry, error) {
	f.gotName, f.gotFilename = name, filename
	return f.entry, f.err
}

func (f *fakeService) Remove(_ context.Context, key string) error {
	f.gotKey = key
	return f.err
}

func (f *fakeService) Sync(context.Context) (gallery.SyncResult, error) {
	return f.syncResult, f.err
}

func (f *fakeService) Entries() ([]gallery.Entry, error) {
	return f.entries, f.err
}

func (f *fakeService) Investigate(_ context.Context, target string) (osint.Report, error) {
	f.gotTarget = target
	return f.report, f.err
}

func (f *fakeService) Status() (scan.Status, error) {
	return f.status, f.err
}

func (f *fakeService) RecentDecisions(_ context.Context, limit int) ([]audit.Record, error) {
	f.gotLimit = limit
	return f.records, f.err
}

// multipartRequest builds a POST with form fields and an optional file part.
func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, filename string, content []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
