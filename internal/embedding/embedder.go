package embedding

import "context"

// Embedder turns text into fixed-dimension vectors. Implementations are
// constructor-injected into the processor and indexer so tests can substitute
// a stub backend.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one request.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	Dimension() int
}
