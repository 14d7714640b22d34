package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextExtractor handles plain-text files and anything without a more
// specific extractor.
type TextExtractor struct{}

// Supports accepts any file; TextExtractor is the fallback.
func (e *TextExtractor) Supports(string) bool { return true }

// Extract reads the file as UTF-8 text.
func (e *TextExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	text := normalizeText(string(data))
	return &Document{
		Filename:     filepath.Base(path),
		DocumentType: "text",
		Text:         text,
		WordCount:    countWords(text),
	}, nil
}

// MarkdownExtractor handles Markdown files: YAML front matter is dropped,
// the body is kept as-is (headings and emphasis are still useful text).
type MarkdownExtractor struct{}

// Supports reports whether the file is Markdown.
func (e *MarkdownExtractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// Extract reads the Markdown body.
func (e *MarkdownExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	text := normalizeText(stripFrontMatter(string(data)))
	return &Document{
		Filename:     filepath.Base(path),
		DocumentType: "markdown",
		Text:         text,
		WordCount:    countWords(text),
	}, nil
}

// stripFrontMatter removes a leading YAML front matter block delimited by
// "---" lines.
func stripFrontMatter(text string) string {
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return text
	}
	rest := text[strings.Index(text, "\n")+1:]
	for _, delim := range []string{"\n---\n", "\n---\r\n"} {
		if idx := strings.Index(rest, delim); idx >= 0 {
			return rest[idx+len(delim):]
		}
	}
	return text
}

// normalizeText unifies line endings and trims trailing whitespace per line.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
