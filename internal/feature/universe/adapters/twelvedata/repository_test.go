package twelvedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"compliance_screener/internal/feature/compliance/domain/entity"
)

func TestNewTwelveDataListings(t *testing.T) {
	t.Parallel()

	src := NewTwelveDataListings(Config{APIKey: "test-key"}, &http.Client{})

	if src == nil {
		t.Fatal("expected non-nil source")
	}
	if src.cfg.BaseURL != DefaultBaseURL {
		t.Errorf("expected default base url, got %q", src.cfg.BaseURL)
	}
}

func TestTwelveDataListings_Listings_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stocks" {
			t.Errorf("expected path /stocks, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("exchange") != "XETR" {
			t.Errorf("expected exchange XETR, got %s", r.URL.Query().Get("exchange"))
		}
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Errorf("expected apikey test-key, got %s", r.URL.Query().Get("apikey"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"data": [
				{"symbol": "BMW", "name": "Bayerische Motoren Werke AG", "currency": "EUR", "exchange": "XETR", "mic_code": "XETR", "country": "Germany", "type": "Common Stock"},
				{"symbol": "SAP", "name": "SAP SE", "currency": "EUR", "exchange": "XETR", "mic_code": "", "country": "Germany", "type": "Common Stock"},
				{"symbol": "", "name": "broken"}
			]
		}`))
	}))
	defer server.Close()

	src := NewTwelveDataListings(Config{APIKey: "test-key", BaseURL: server.URL}, server.Client())

	got, err := src.Listings(context.Background(), "XETR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []entity.Listing{{Ticker: "BMW", Exchange: "XETR"}, {Ticker: "SAP", Exchange: "XETR"}}
	if len(got) != len(want) {
		t.Fatalf("expected %d listings, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("listing %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestTwelveDataListings_Listings_HTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
	}{
		{"unauthorized", http.StatusUnauthorized},
		{"too many requests", http.StatusTooManyRequests},
		{"internal server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			src := NewTwelveDataListings(Config{BaseURL: server.URL}, server.Client())

			_, err := src.Listings(context.Background(), "XNYS")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), "twelvedata http") {
				t.Errorf("expected HTTP error message, got %v", err)
			}
		})
	}
}

func TestTwelveDataListings_Listings_APIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error", "code": 401, "message": "Invalid API key"}`))
	}))
	defer server.Close()

	src := NewTwelveDataListings(Config{APIKey: "bad", BaseURL: server.URL}, server.Client())

	_, err := src.Listings(context.Background(), "XNYS")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Invalid API key") {
		t.Errorf("expected API error message, got %v", err)
	}
}

func TestTwelveDataListings_Listings_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{invalid json`))
	}))
	defer server.Close()

	src := NewTwelveDataListings(Config{BaseURL: server.URL}, server.Client())

	if _, err := src.Listings(context.Background(), "XNYS"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
