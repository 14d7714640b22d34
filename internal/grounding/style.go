package grounding

import (
	"fmt"
	"regexp"
	"strings"
)

// Style gate thresholds. Chapters that trip any of these get the issue fed
// back into the revision loop, and style_ok fails the final quality gate.
const (
	maxSectionHeadings = 3
	dashDensityLimit   = 2.0 // dashes per 1000 words
	metaLanguageLimit  = 6
	provenanceMinWords = 20 // paragraphs shorter than this skip citation checks
	issueExcerptMaxLen = 80
)

var (
	sectionHeadingRe = regexp.MustCompile(`(?m)^##\s`)
	namedFrameworkRe = regexp.MustCompile(`[A-Z]{3,}\s+Framework`)
	metaLanguageRe   = regexp.MustCompile(`(?i)\b(framework|toolkit|arsenal)s?\b`)
	sentenceSplitRe  = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	digitRe          = regexp.MustCompile(`\d`)
	factualCueRe     = regexp.MustCompile(`(?i)\b(stud(y|ies)|research(ers)?|clinical(ly)?|patients?|symptoms?|diagnos\w*|treatments?|therap(y|ies|ists?)|disorders?|percent(age)?s?|statistic(s|al(ly)?)?|evidence|trials?|dos(age|es)|medications?)\b`)
	firstPersonRe    = regexp.MustCompile(`\bI\b`)
	quotedSpanRe     = regexp.MustCompile(`"[^"]*"|“[^”]*”`)
	paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)
)

// citedSentinel replaces citation markers before sentence splitting so a
// period inside a quoted excerpt never cuts a sentence in half, and so a
// sentence's cited status survives the split.
const citedSentinel = " CITEDREF "

// ComputeStyleIssues runs the deterministic style checks over chapter prose
// and returns one human-readable issue per violation. An empty slice means
// the style gate passes. The function is pure.
func ComputeStyleIssues(content string) []string {
	var issues []string

	if headings := sectionHeadingRe.FindAllStringIndex(content, -1); len(headings) > maxSectionHeadings {
		issues = append(issues, fmt.Sprintf("Too many section headings: %d (max %d)", len(headings), maxSectionHeadings))
	}

	if issue, ok := dashDensityIssue(content); ok {
		issues = append(issues, issue)
	}

	if m := namedFrameworkRe.FindString(content); m != "" {
		issues = append(issues, fmt.Sprintf("Invented named framework: %q", m))
	}

	if n := len(metaLanguageRe.FindAllString(content, -1)); n >= metaLanguageLimit {
		issues = append(issues, fmt.Sprintf("Excessive meta-language: %d framework/toolkit/arsenal mentions", n))
	}

	if CountMarkerAttempts(content) == 0 {
		issues = append(issues, "No citations found in content")
	}

	issues = append(issues, uncitedFactualSentences(content)...)
	issues = append(issues, quoteProvenanceIssues(content)...)
	issues = append(issues, firstPersonIssues(content)...)

	return issues
}

func dashDensityIssue(content string) (string, bool) {
	words := len(strings.Fields(content))
	if words == 0 {
		return "", false
	}
	dashes := strings.Count(content, "—") + strings.Count(content, "–") + strings.Count(content, "--")
	density := float64(dashes) / float64(words) * 1000
	if density <= dashDensityLimit {
		return "", false
	}
	return fmt.Sprintf("Dash density too high: %.1f per 1000 words (max %.1f)", density, dashDensityLimit), true
}

// uncitedFactualSentences flags sentences that carry a number or a clinical
// cue word but sit in no cited sentence. Markers are replaced with a
// sentinel first so their quoted text never triggers a false positive.
func uncitedFactualSentences(content string) []string {
	masked := markerAnyRe.ReplaceAllString(content, citedSentinel)

	var issues []string
	for _, sentence := range sentenceSplitRe.Split(masked, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || strings.Contains(sentence, "CITEDREF") {
			continue
		}
		if !digitRe.MatchString(sentence) && !factualCueRe.MatchString(sentence) {
			continue
		}
		issues = append(issues, fmt.Sprintf("Uncited factual sentence: %q", excerpt(sentence)))
	}
	return issues
}

// quoteProvenanceIssues requires that the quoted excerpt of every citation
// in a substantial paragraph also appears in that paragraph's prose. A
// dangling marker whose quote was paraphrased away is how fabricated
// grounding sneaks past spot checks.
func quoteProvenanceIssues(content string) []string {
	var issues []string
	for _, para := range paragraphSplitRe.Split(content, -1) {
		prose := StripMarkers(para)
		if len(strings.Fields(prose)) < provenanceMinWords {
			continue
		}
		normProse := NormalizeText(prose)
		for _, m := range ParseMarkers(para) {
			if strings.Contains(normProse, NormalizeText(m.Quote)) {
				continue
			}
			issues = append(issues, fmt.Sprintf("Citation quote not present in paragraph prose: %q (from %s)", excerpt(m.Quote), strings.TrimSpace(m.Filename)))
		}
	}
	return issues
}

// firstPersonIssues flags authorial first person. "I" inside a quoted span
// is someone else speaking and stays allowed.
func firstPersonIssues(content string) []string {
	prose := StripMarkers(content)
	prose = quotedSpanRe.ReplaceAllString(prose, " ")

	var issues []string
	for _, sentence := range sentenceSplitRe.Split(prose, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || !firstPersonRe.MatchString(sentence) {
			continue
		}
		issues = append(issues, fmt.Sprintf("First-person sentence: %q", excerpt(sentence)))
	}
	return issues
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= issueExcerptMaxLen {
		return s
	}
	return s[:issueExcerptMaxLen] + "..."
}
