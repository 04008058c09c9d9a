// Package importer reconciles ready packages into the library catalog.
//
// The at-least-once contract lives here: every package is fingerprinted, the
// catalog's unique fingerprint index rejects repeats, and the move to
// ready/imported happens strictly after the catalog commit. A crash between
// commit and move surfaces as one duplicate on the rerun rather than data
// loss or a double import. Direct ingest catalogs local files with the same
// dedup and can feed the index queue.
package importer
