package grounding

import "strings"

// Sanitize prepares finalized chapter content. The default pass only trims
// surrounding whitespace: enforcement belongs to the quality gates, not to
// silent rewrites. Destructive mode applies the legacy rewrite rules and
// stays off unless GHOSTLINE_DESTRUCTIVE_SANITIZER is set.
func Sanitize(content string, destructive bool) string {
	if !destructive {
		return strings.TrimSpace(content)
	}
	content = dropUncitedParagraphs(content)
	content = injectMissingQuotes(content)
	content = stripFirstPersonSentences(content)
	return strings.TrimSpace(content)
}

// dropUncitedParagraphs removes substantial paragraphs that carry no
// citation marker at all.
func dropUncitedParagraphs(content string) string {
	paras := paragraphSplitRe.Split(content, -1)
	kept := paras[:0]
	for _, para := range paras {
		if len(strings.Fields(para)) >= provenanceMinWords && CountMarkerAttempts(para) == 0 {
			continue
		}
		kept = append(kept, para)
	}
	return strings.Join(kept, "\n\n")
}

// injectMissingQuotes re-inserts a citation's quoted text ahead of its
// marker when the prose paraphrased the quote away.
func injectMissingQuotes(content string) string {
	paras := paragraphSplitRe.Split(content, -1)
	for i, para := range paras {
		normProse := NormalizeText(StripMarkers(para))
		markers := ParseMarkers(para)
		for j := len(markers) - 1; j >= 0; j-- {
			m := markers[j]
			if strings.Contains(normProse, NormalizeText(m.Quote)) {
				continue
			}
			para = para[:m.Start] + "\"" + strings.TrimSpace(m.Quote) + "\" " + para[m.Start:]
		}
		paras[i] = para
	}
	return strings.Join(paras, "\n\n")
}

// stripFirstPersonSentences drops sentences written in the authorial first
// person. Quoted speech keeps its "I".
func stripFirstPersonSentences(content string) string {
	paras := paragraphSplitRe.Split(content, -1)
	for i, para := range paras {
		sentences := splitSentencesKeep(para)
		kept := sentences[:0]
		for _, sentence := range sentences {
			probe := quotedSpanRe.ReplaceAllString(StripMarkers(sentence), " ")
			if firstPersonRe.MatchString(probe) {
				continue
			}
			kept = append(kept, sentence)
		}
		paras[i] = strings.TrimSpace(strings.Join(kept, ""))
	}
	return strings.Join(paras, "\n\n")
}

// splitSentencesKeep splits text into sentences with their terminators and
// trailing whitespace attached, so joining the pieces reproduces the input.
func splitSentencesKeep(s string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceSplitRe.FindAllStringIndex(s, -1) {
		out = append(out, s[last:loc[1]])
		last = loc[1]
	}
	if last < len(s) {
		out = append(out, s[last:])
	}
	return out
}
