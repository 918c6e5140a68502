package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	t.Run("server error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.StatusBadGateway, "listing_failed", "dial tcp 10.0.0.1:443: refused")

		if w.Code != http.StatusBadGateway {
			t.Fatalf("expected status %d, got %d", http.StatusBadGateway, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "listing_failed" {
			t.Fatalf("expected error code listing_failed, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for server errors")
		}
	})

	t.Run("client error includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.StatusNotFound, "not_found", "unknown catalog \"berry\"")

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected json content type, got %q", ct)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error_description"] != "unknown catalog \"berry\"" {
			t.Fatalf("expected error_description to be returned for client errors, got %q", body["error_description"])
		}
	})
}
