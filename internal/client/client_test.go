package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"harvest/internal/api"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true})
	}))
	defer server.Close()

	c := New(server.URL, "tok123")
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running {
		t.Fatal("status not running")
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "only pending jobs can be removed"})
	}))
	defer server.Close()

	c := New(server.URL, "")
	err := c.RemoveJob(context.Background(), 7)
	if err == nil || err.Error() != "only pending jobs can be removed" {
		t.Fatalf("err = %v", err)
	}
}

func TestClientBuildsQueueFilters(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(api.QueueListResponse{})
	}))
	defer server.Close()

	c := New(server.URL, "")
	if _, err := c.ListQueue(context.Background(), "index", []string{"pending", "failed"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotQuery != "kind=index&status=pending&status=failed" {
		t.Fatalf("query = %q", gotQuery)
	}
}
