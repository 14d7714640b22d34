package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFExtractor extracts text from PDF files.
type PDFExtractor struct{}

// Supports reports whether the file is a PDF.
func (e *PDFExtractor) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Extract reads the full text and page count of a PDF.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("failed to extract pdf text %s: %w", filepath.Base(path), err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("failed to read pdf text %s: %w", filepath.Base(path), err)
	}

	// Scanned PDFs with no text layer extract to nothing; surface that
	// instead of storing an empty source.
	text := normalizeText(buf.String())
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pdf %s has no extractable text layer", filepath.Base(path))
	}

	pageCount, err := api.PageCountFile(path)
	if err != nil {
		pageCount = r.NumPage()
	}

	return &Document{
		Filename:     filepath.Base(path),
		DocumentType: "pdf",
		Text:         text,
		WordCount:    countWords(text),
		PageCount:    pageCount,
	}, nil
}
