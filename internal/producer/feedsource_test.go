package producer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"harvest/internal/config"
	"harvest/internal/services"
)

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]feedItem{
			{ID: "sermon-1", URL: "SERVER/docs/sermon-1", Title: "On Patience", Teacher: "R. Adams", Type: "text", Topics: []string{"patience"}},
			{ID: "sermon-2", URL: "SERVER/docs/missing", Title: "Lost"},
			{ID: "", URL: "SERVER/docs/anon"},
		})
	})
	mux.HandleFunc("/docs/sermon-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Patience is a discipline practiced daily."))
	})
	mux.HandleFunc("/docs/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFeedSourceDiscoverAndFetch(t *testing.T) {
	server := newFeedServer(t)

	src, err := NewFeedSource("sermons", config.Source{
		BaseURL:    server.URL + "/index.json",
		Collection: "sermons",
	})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	// The fixture index can't know the server URL ahead of time, so rewrite
	// discovered URLs before fetching.
	entries, err := src.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (blank id dropped)", len(entries))
	}
	for i := range entries {
		entries[i].URL = server.URL + entries[i].URL[len("SERVER"):]
	}

	record, err := src.Fetch(context.Background(), entries[0])
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if record.Filename != "sermon-1.json" {
		t.Fatalf("filename = %q", record.Filename)
	}
	if record.Teacher != "R. Adams" || record.Collection != "sermons" {
		t.Fatalf("record = %+v", record)
	}
	if record.Text == "" {
		t.Fatal("record has no text")
	}

	if _, err := src.Fetch(context.Background(), entries[1]); err == nil {
		t.Fatal("expected error for 404 document")
	} else if services.IsTransient(err) {
		t.Fatalf("404 should not be transient: %v", err)
	}
}

func TestFeedSourceClassifiesServerErrorsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src, err := NewFeedSource("sermons", config.Source{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	_, err = src.Discover(context.Background())
	if err == nil || !services.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestNewFeedSourceRequiresBaseURL(t *testing.T) {
	_, err := NewFeedSource("sermons", config.Source{})
	if err == nil || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}
