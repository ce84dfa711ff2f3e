package cse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(context.Background(), "test-key", "test-cx", "https://scan.example/",
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "Jane Roe" || q.Get("cx") != "test-cx" {
			t.Errorf("unexpected query parameters: %s", r.URL.RawQuery)
		}
		if q.Get("num") != "10" {
			t.Errorf("expected num capped at 10, got %s", q.Get("num"))
		}
		if r.Header.Get("Referer") != "https://scan.example/" {
			t.Errorf("expected referer header, got %q", r.Header.Get("Referer"))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{
				{"title": "Jane Roe", "link": "https://en.wikipedia.org/wiki/Jane_Roe", "snippet": "Researcher"},
				{"title": "Other", "link": "https://other.example", "snippet": "More"},
			},
		})
	})

	hits, err := c.Search(context.Background(), "Jane Roe", 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Title != "Jane Roe" || hits[0].Text != "Researcher" || hits[0].Link != "https://en.wikipedia.org/wiki/Jane_Roe" {
		t.Errorf("unexpected first hit: %+v", hits[0])
	}
}

func TestSearch_NoItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"searchInformation": {"totalResults": "0"}}`))
	})

	hits, err := c.Search(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearch_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"code": 429, "message": "Quota exceeded"}}`))
	})

	if _, err := c.Search(context.Background(), "Jane Roe", 5); err == nil {
		t.Error("expected error for quota failure")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(context.Background(), "", "cx", ""); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := New(context.Background(), "key", "", ""); err == nil {
		t.Error("expected error without engine ID")
	}
}
