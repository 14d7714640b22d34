// Package book provides shared book-generation types used across multiple packages.
// This package has no dependencies on other ghostline packages to avoid import cycles.
package book

import "time"

// Outline is the book plan produced by the outline subgraph and frozen on
// user approval.
type Outline struct {
	Title          string           `json:"title"`
	Premise        string           `json:"premise"`
	Chapters       []OutlineChapter `json:"chapters"`
	Themes         []string         `json:"themes,omitempty"`
	TargetAudience string           `json:"target_audience,omitempty"`
}

// OutlineChapter is one planned chapter.
type OutlineChapter struct {
	Number         int      `json:"number"`
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points,omitempty"`
	EstimatedWords int      `json:"estimated_words,omitempty"`
}

// Trim truncates the outline to at most n chapters and renumbers them 1..len.
func (o *Outline) Trim(n int) {
	if n > 0 && len(o.Chapters) > n {
		o.Chapters = o.Chapters[:n]
	}
	for i := range o.Chapters {
		o.Chapters[i].Number = i + 1
	}
}

// Chapter is a finished chapter as appended to workflow state.
type Chapter struct {
	Number             int             `json:"number"`
	Title              string          `json:"title"`
	ContentRaw         string          `json:"content_raw"`   // with citation markers
	ContentClean       string          `json:"content_clean"` // markers removed
	WordCount          int             `json:"word_count"`
	VoiceScore         float64         `json:"voice_score"`
	FactScore          float64         `json:"fact_score"`
	CohesionScore      float64         `json:"cohesion_score"`
	Citations          []Citation      `json:"citations,omitempty"`
	CitationReport     *CitationReport `json:"citation_report,omitempty"`
	QualityGatesPassed bool            `json:"quality_gates_passed"`
	QualityGateReport  *GateReport     `json:"quality_gate_report,omitempty"`
	RevisionHistory    []RevisionEntry `json:"revision_history,omitempty"`
}

// RevisionEntry records per-iteration diagnostics for post-mortem triage.
type RevisionEntry struct {
	Stage         string    `json:"stage"` // "draft", "revision", "finalize"
	Iteration     int       `json:"iteration"`
	VoiceScore    float64   `json:"voice_score"`
	FactScore     float64   `json:"fact_score"`
	CohesionScore float64   `json:"cohesion_score"`
	StyleIssues   []string  `json:"style_issues,omitempty"`
	Feedback      []string  `json:"feedback,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Citation binds a verbatim source excerpt to a position in chapter text.
type Citation struct {
	Filename         string `json:"filename"`
	Quote            string `json:"quote"`
	MarkerStart      int    `json:"marker_start"`
	MarkerEnd        int    `json:"marker_end"`
	QuoteStart       int    `json:"quote_start,omitempty"`
	QuoteEnd         int    `json:"quote_end,omitempty"`
	Verified         bool   `json:"verified"`
	SourceMaterialID string `json:"source_material_id,omitempty"`
}

// CitationReport is the deterministic inline-citation verification result.
type CitationReport struct {
	InlineTotal         int        `json:"inline_total"`
	InlineParsed        int        `json:"inline_parsed"`
	InlineInvalidFormat int        `json:"inline_invalid_format"`
	InlineVerified      int        `json:"inline_verified"`
	InlineUnverified    int        `json:"inline_unverified"`
	InlineQuality       float64    `json:"inline_quality"` // verified/parsed
	Citations           []Citation `json:"citations,omitempty"`
}

// CitationsOK reports whether the deterministic citation gate passes.
func (r *CitationReport) CitationsOK() bool {
	if r == nil {
		return false
	}
	return r.InlineParsed > 0 &&
		r.InlineInvalidFormat == 0 &&
		r.InlineUnverified == 0 &&
		r.InlineQuality >= 0.99 &&
		r.InlineTotal > 0
}

// GateReport breaks down the final quality gate.
type GateReport struct {
	VoiceOK     bool     `json:"voice_ok"`
	FactOK      bool     `json:"fact_ok"`
	CohesionOK  bool     `json:"cohesion_ok"`
	CitationsOK bool     `json:"citations_ok"`
	StyleOK     bool     `json:"style_ok"`
	StyleIssues []string `json:"style_issues,omitempty"`
}

// ClaimMapping is a single fact-checker finding tying a claim to a source quote.
type ClaimMapping struct {
	Claim            string  `json:"claim"`
	SourceFilename   string  `json:"source_filename"`
	Quote            string  `json:"quote"`
	QuoteVerified    bool    `json:"quote_verified"`
	IsSupported      bool    `json:"is_supported"`
	NeedsHumanReview bool    `json:"needs_human_review"`
	Confidence       float64 `json:"confidence"`
}

// CanonBlock is the grounded per-chapter memory fed forward to later chapters.
// Append-only: constructed from the finalized chapter output and never rewritten.
type CanonBlock struct {
	ChapterNumber       int      `json:"chapter_number"`
	Title               string   `json:"title"`
	OutlineSummary      string   `json:"outline_summary"`
	KeyPoints           []string `json:"key_points,omitempty"`
	GroundedCommitments []string `json:"grounded_commitments,omitempty"`
	NeedsReview         []string `json:"needs_review,omitempty"`
	Unsupported         []string `json:"unsupported,omitempty"`
	CitationsOK         bool     `json:"citations_ok"`
	StyleIssues         []string `json:"style_issues,omitempty"`
}
