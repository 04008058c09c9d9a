package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"harvest/internal/config"
	"harvest/internal/services"
)

const (
	// DefaultModel produces 768-dimensional vectors.
	DefaultModel = "nomic-embed-text"

	// DefaultDimension is the dimension for nomic-embed-text.
	DefaultDimension = 768

	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 60 * time.Second
)

// OllamaClient implements Embedder against an Ollama-compatible HTTP server.
type OllamaClient struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

var _ Embedder = (*OllamaClient)(nil)

// NewOllamaClient creates an embedding client from configuration. Empty
// fields fall back to the nomic defaults.
func NewOllamaClient(cfg config.Embedding) *OllamaClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Model returns the configured embedding model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Dimension returns the expected embedding dimension.
func (c *OllamaClient) Dimension() int {
	return c.dimension
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed generates an embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single request and
// verifies every vector against the expected dimension.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "embedding", "embed", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "embedding", "embed", "read response", err)
	}

	var decoded embedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "embedding", "embed",
			fmt.Sprintf("invalid response (status %d)", resp.StatusCode), err)
	}
	if resp.StatusCode != http.StatusOK {
		message := decoded.Error
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		marker := services.ErrExternalTool
		if resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, "embedding", "embed",
			fmt.Sprintf("status %d: %s", resp.StatusCode, message), nil)
	}

	if len(decoded.Embeddings) != len(texts) {
		return nil, services.Wrap(services.ErrExternalTool, "embedding", "embed",
			fmt.Sprintf("embedding count mismatch: got %d, want %d", len(decoded.Embeddings), len(texts)), nil)
	}
	for i, vector := range decoded.Embeddings {
		if len(vector) != c.dimension {
			return nil, services.Wrap(services.ErrExternalTool, "embedding", "embed",
				fmt.Sprintf("embedding %d dimension mismatch: got %d, want %d (model %s)",
					i, len(vector), c.dimension, c.model), nil)
		}
	}
	return decoded.Embeddings, nil
}
