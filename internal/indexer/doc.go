// Package indexer processes the index queue in controlled batches.
//
// Each job points at a cataloged library file: the worker extracts its text,
// chunks and embeds it, swaps the stored chunks, and flips the indexed flag.
// ProcessBatch reports how many pending jobs remain so orchestration loops
// can poll until the queue drains.
package indexer
