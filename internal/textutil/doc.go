// Package textutil provides text normalization, filename sanitization, and
// the content fingerprint used for import deduplication.
package textutil
