package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// NormalizeText prepares raw content for chunking and fingerprinting: NFC
// normalization, whitespace collapsed to single spaces with paragraph breaks
// preserved as blank lines.
func NormalizeText(text string) string {
	text = norm.NFC.String(text)
	paragraphs := strings.Split(text, "\n\n")
	cleaned := make([]string, 0, len(paragraphs))
	for _, para := range paragraphs {
		fields := strings.FieldsFunc(para, unicode.IsSpace)
		if len(fields) == 0 {
			continue
		}
		cleaned = append(cleaned, strings.Join(fields, " "))
	}
	return strings.Join(cleaned, "\n\n")
}

// FoldName case-folds and NFC-normalizes a filename for duplicate comparison.
func FoldName(name string) string {
	return foldCaser.String(norm.NFC.String(strings.TrimSpace(name)))
}
