// Package library manages the catalog of imported content in SQLite.
//
// Every piece of content is a library_files row keyed by a content
// fingerprint; the fingerprint's unique index is what makes imports
// idempotent. Chunked, embedded text lives in the chunks table. Rows are
// created by the importer and direct ingest, flipped to indexed by the index
// worker, and never deleted by the pipeline.
package library
