// Package embedding generates text embedding vectors for chunk indexing.
//
// The Embedder interface is the pipeline's only view of the model; the
// default implementation speaks the Ollama HTTP embed API. Every returned
// vector is verified against the configured dimension before it is stored,
// since a dimension drift would silently corrupt the searchable index.
package embedding
