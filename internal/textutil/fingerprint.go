package textutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the duplicate-detection key for a piece of content:
// the SHA-256 of the folded filename and the normalized text, hex encoded.
// Two imports of the same content always produce the same fingerprint even
// when the bytes arrive via different pipeline paths.
func Fingerprint(filename, text string) string {
	h := sha256.New()
	h.Write([]byte(FoldName(filename)))
	h.Write([]byte{'\n'})
	h.Write([]byte(NormalizeText(text)))
	return hex.EncodeToString(h.Sum(nil))
}
