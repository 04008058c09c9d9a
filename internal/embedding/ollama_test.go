package embedding_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"harvest/internal/config"
	"harvest/internal/embedding"
	"harvest/internal/services"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newClient(baseURL string, dimension int) *embedding.OllamaClient {
	return embedding.NewOllamaClient(config.Embedding{
		BaseURL:   baseURL,
		Model:     "test-model",
		Dimension: dimension,
	})
}

func TestEmbedBatchReturnsVectors(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Input) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}},
		})
	})

	client := newClient(server.URL, 3)
	vectors, err := client.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 3 {
		t.Fatalf("unexpected vectors: %#v", vectors)
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2}},
		})
	})

	client := newClient(server.URL, 3)
	if _, err := client.Embed(context.Background(), "alpha"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestEmbedServerErrorIsTransient(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model loading"})
	})

	client := newClient(server.URL, 3)
	_, err := client.Embed(context.Background(), "alpha")
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestEmbedBatchEmptyInputSkipsRequest(t *testing.T) {
	client := newClient("http://127.0.0.1:1", 3)
	vectors, err := client.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vectors) != 0 {
		t.Fatalf("expected no vectors, got %#v", vectors)
	}
}

func TestDefaultsApplied(t *testing.T) {
	client := embedding.NewOllamaClient(config.Embedding{})
	if client.Model() != embedding.DefaultModel {
		t.Fatalf("unexpected model %s", client.Model())
	}
	if client.Dimension() != embedding.DefaultDimension {
		t.Fatalf("unexpected dimension %d", client.Dimension())
	}
}
