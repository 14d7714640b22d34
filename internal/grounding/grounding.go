// Package grounding enforces that chapter prose is traceable to source
// documents. It parses inline citation markers, verifies each quoted excerpt
// against the source text, computes the deterministic style gate, and builds
// the quote bank used by revision prompts. Everything here is pure: the same
// content and sources always produce the same report.
package grounding

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ghostline-ai/ghostline/internal/book"
)

// Citation marker syntax required in chapter prose:
//
//	[citation: <filename> - "<exact quote from source>"]
//
// Quotes may be straight or curly. markerRe parses the strict form;
// markerAnyRe matches anything that tried to be a marker, for counting and
// stripping.
var (
	markerRe    = regexp.MustCompile(`\[citation:\s*([^\]]+?)\s*-\s*["“”]([^"“”]+)["“”]\s*\]`)
	markerAnyRe = regexp.MustCompile(`(?i)\[citation:[^\]]*\]`)
	spaceRunRe  = regexp.MustCompile(`[ \t]{2,}`)
	punctGapRe  = regexp.MustCompile(` +([.,;:!?])`)
)

// Source is one source document the verifier can check quotes against.
// Text should be the full extracted document text when available; chunk
// contents concatenated per file are an acceptable stand-in.
type Source struct {
	Filename   string
	Text       string
	MaterialID string
}

// Marker is one parsed citation marker with its span in the content.
type Marker struct {
	Filename string
	Quote    string
	Start    int
	End      int
}

// ParseMarkers returns the strictly-parseable citation markers in content,
// in order of appearance.
func ParseMarkers(content string) []Marker {
	idx := markerRe.FindAllStringSubmatchIndex(content, -1)
	markers := make([]Marker, 0, len(idx))
	for _, m := range idx {
		markers = append(markers, Marker{
			Filename: content[m[2]:m[3]],
			Quote:    content[m[4]:m[5]],
			Start:    m[0],
			End:      m[1],
		})
	}
	return markers
}

// CountMarkerAttempts counts every occurrence of "[citation:" regardless of
// whether the rest of the marker parses.
func CountMarkerAttempts(content string) int {
	return strings.Count(strings.ToLower(content), "[citation:")
}

// VerifyInlineCitations checks every citation marker in content against the
// given sources. A quote verifies when its normalized text appears in the
// normalized source text for the cited filename.
func VerifyInlineCitations(content string, sources []Source) *book.CitationReport {
	report := &book.CitationReport{
		InlineTotal: CountMarkerAttempts(content),
	}

	type sourceText struct {
		norm       string
		materialID string
	}
	lookup := make(map[string]*sourceText, len(sources))
	for _, src := range sources {
		key := NormalizeFilename(src.Filename)
		if key == "" {
			continue
		}
		if existing, ok := lookup[key]; ok {
			existing.norm += " " + NormalizeText(src.Text)
			continue
		}
		lookup[key] = &sourceText{norm: NormalizeText(src.Text), materialID: src.MaterialID}
	}

	markers := ParseMarkers(content)
	report.InlineParsed = len(markers)
	report.InlineInvalidFormat = report.InlineTotal - report.InlineParsed
	if report.InlineInvalidFormat < 0 {
		report.InlineInvalidFormat = 0
	}

	for _, m := range markers {
		citation := book.Citation{
			Filename:    strings.TrimSpace(m.Filename),
			Quote:       strings.TrimSpace(m.Quote),
			MarkerStart: m.Start,
			MarkerEnd:   m.End,
		}

		normQuote := NormalizeText(m.Quote)
		if src, ok := lookup[NormalizeFilename(m.Filename)]; ok {
			citation.SourceMaterialID = src.materialID
			if normQuote != "" && strings.Contains(src.norm, normQuote) {
				citation.Verified = true
			}
		}

		if citation.Verified {
			report.InlineVerified++
		} else {
			report.InlineUnverified++
		}
		report.Citations = append(report.Citations, citation)
	}

	if report.InlineParsed > 0 {
		report.InlineQuality = float64(report.InlineVerified) / float64(report.InlineParsed)
	}
	return report
}

// StripMarkers removes every citation marker from content and collapses the
// space runs left behind. Newlines are preserved.
func StripMarkers(content string) string {
	clean := markerAnyRe.ReplaceAllString(content, "")
	clean = spaceRunRe.ReplaceAllString(clean, " ")
	clean = punctGapRe.ReplaceAllString(clean, "$1")

	lines := strings.Split(clean, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// CitationIndex positions each verified citation's quote within the cleaned
// content, for rendering per-chapter notes. Quotes that cannot be located
// keep zero positions.
func CitationIndex(contentClean string, report *book.CitationReport) []book.Citation {
	if report == nil {
		return nil
	}
	citations := make([]book.Citation, len(report.Citations))
	copy(citations, report.Citations)

	lowerClean := strings.ToLower(contentClean)
	lastEnd := make(map[string]int) // repeated quotes advance through the text
	for i := range citations {
		if !citations[i].Verified {
			continue
		}
		needle := strings.ToLower(citations[i].Quote)
		if needle == "" {
			continue
		}
		from := lastEnd[needle]
		if from > len(lowerClean) {
			from = 0
		}
		idx := strings.Index(lowerClean[from:], needle)
		if idx < 0 && from > 0 {
			idx = strings.Index(lowerClean, needle)
			from = 0
		}
		if idx < 0 {
			continue
		}
		citations[i].QuoteStart = from + idx
		citations[i].QuoteEnd = from + idx + len(needle)
		lastEnd[needle] = citations[i].QuoteEnd
	}
	return citations
}

// VerifyQuote reports whether a quote appears in the named source, under the
// same normalization as inline citation verification.
func VerifyQuote(filename, quote string, sources []Source) bool {
	normQuote := NormalizeText(quote)
	if normQuote == "" {
		return false
	}
	key := NormalizeFilename(filename)
	for _, src := range sources {
		if NormalizeFilename(src.Filename) != key {
			continue
		}
		if strings.Contains(NormalizeText(src.Text), normQuote) {
			return true
		}
	}
	return false
}

// NormalizeFilename lowercases a cited filename and strips stray brackets so
// "[MentalHealth1.PDF]" and "mentalhealth1.pdf" compare equal.
func NormalizeFilename(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Trim(name, "[]")
}

// NormalizeText lowercases text and collapses every non-alphanumeric run to
// a single space. Quote verification is strict equality on this form, so
// punctuation and whitespace differences never break a match.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		} else {
			pendingSpace = true
		}
	}
	return b.String()
}
