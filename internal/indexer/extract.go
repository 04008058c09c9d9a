package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"harvest/internal/services"
)

// extractText pulls plain text out of a library file based on its type.
// PDFs go through page-by-page extraction; markdown and plain text are read
// as-is.
func extractText(path, mimeType string) (string, error) {
	if mimeType == "application/pdf" || strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "indexer", "extract", "read file", err)
	}
	return string(data), nil
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "indexer", "extract", "open pdf", err)
	}
	defer f.Close()

	var builder strings.Builder
	totalPages := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "indexer", "extract",
				fmt.Sprintf("page %d", pageIndex), err)
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}
