// Package extract pulls plain text out of uploaded source files (PDF,
// Markdown, plain text) and splits it into overlapping word-window chunks
// for embedding.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Document is the extraction result for one source file.
type Document struct {
	Filename     string
	DocumentType string // "pdf", "markdown", "text"
	Text         string
	WordCount    int
	PageCount    int // PDFs only
}

// Extractor pulls text from one kind of source file.
type Extractor interface {
	// Extract reads the file and returns its text.
	Extract(ctx context.Context, path string) (*Document, error)

	// Supports reports whether this extractor handles the file.
	Supports(path string) bool
}

// ForFile returns the extractor for a path based on its extension.
func ForFile(path string) (Extractor, error) {
	for _, e := range []Extractor{&PDFExtractor{}, &MarkdownExtractor{}, &TextExtractor{}} {
		if e.Supports(path) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
}

// Extract runs the appropriate extractor for a path.
func Extract(ctx context.Context, path string) (*Document, error) {
	e, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	return e.Extract(ctx, path)
}

// DocumentTypeFor returns the document type string for a path.
func DocumentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "pdf"
	case ".md", ".markdown":
		return "markdown"
	default:
		return "text"
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
