package grounding

import (
	"fmt"
	"strings"
)

const (
	quoteBankMinWords     = 8
	quoteBankMaxWords     = 25
	quoteBankDefaultLimit = 20
)

// BuildQuoteBank extracts verbatim sentences from the sources that a
// revision can cite directly. Sentences the draft already quotes are
// skipped, so the bank always offers new grounding. Entries carry the
// source filename so the model can write a complete marker.
func BuildQuoteBank(sources []Source, draft string, limit int) []string {
	if limit <= 0 {
		limit = quoteBankDefaultLimit
	}

	used := make(map[string]struct{})
	for _, m := range ParseMarkers(draft) {
		used[NormalizeText(m.Quote)] = struct{}{}
	}

	bank := make([]string, 0, limit)
	for _, src := range sources {
		text := strings.Join(strings.Fields(src.Text), " ")
		for _, sentence := range sentenceSplitRe.Split(text, -1) {
			candidate := strings.TrimSpace(sentence)
			candidate = strings.TrimRight(candidate, ".!? \t")
			words := len(strings.Fields(candidate))
			if words < quoteBankMinWords || words > quoteBankMaxWords {
				continue
			}
			norm := NormalizeText(candidate)
			if _, ok := used[norm]; ok {
				continue
			}
			used[norm] = struct{}{}
			bank = append(bank, fmt.Sprintf("%s (source: %s)", candidate, src.Filename))
			if len(bank) >= limit {
				return bank
			}
		}
	}
	return bank
}
