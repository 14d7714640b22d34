package retrieval

import (
	"strings"

	"github.com/ghostline-ai/ghostline/internal/store"
)

// Rerank scoring weights. Similarity dominates; token overlap rewards chunks
// that contain the query's actual terms; the dominance term nudges picks away
// from files that flooded the candidate pool.
const (
	similarityWeight = 0.75
	overlapWeight    = 0.20
	dominanceWeight  = 0.05
)

// Rerank reorders vector matches so the final picks cover more source files.
// Each candidate gets a base score, then picks are greedy: every time a file
// is chosen, the remaining candidates from that file are divided by
// 1 + timesPicked, so a second chunk from the same file must beat a clearly
// better-scored chunk from an unseen file.
func Rerank(query string, matches []store.ChunkMatch, limit int) []store.ChunkMatch {
	if len(matches) == 0 {
		return matches
	}
	if limit <= 0 || limit > len(matches) {
		limit = len(matches)
	}

	qTokens := tokenSet(query)

	byFile := make(map[string]int)
	for _, m := range matches {
		byFile[m.Filename]++
	}
	total := float64(len(matches))

	type candidate struct {
		match store.ChunkMatch
		base  float64
	}
	candidates := make([]candidate, 0, len(matches))
	for _, m := range matches {
		// A file that supplies few of the candidates scores near 1,
		// a file that supplies all of them scores 0.
		dominance := 1.0 - float64(byFile[m.Filename])/total
		base := similarityWeight*m.Similarity +
			overlapWeight*overlapScore(qTokens, m.Content) +
			dominanceWeight*dominance
		candidates = append(candidates, candidate{match: m, base: base})
	}

	picked := make([]store.ChunkMatch, 0, limit)
	pickedByFile := make(map[string]int)
	used := make([]bool, len(candidates))

	for len(picked) < limit {
		bestIdx := -1
		bestScore := 0.0
		for i, c := range candidates {
			if used[i] {
				continue
			}
			score := c.base / float64(1+pickedByFile[c.match.Filename])
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		picked = append(picked, candidates[bestIdx].match)
		pickedByFile[candidates[bestIdx].match.Filename]++
	}
	return picked
}

// charsPerToken is the rough budget conversion used when packing context.
const charsPerToken = 4

// BuildContext packs retrieved chunks into a prompt block, stopping before
// the token budget is exceeded. With citations enabled each chunk is headed
// by its source filename so drafts can cite it.
func (r *Result) BuildContext(maxTokens int, includeCitations bool) string {
	if maxTokens <= 0 {
		maxTokens = 6000
	}
	budget := maxTokens * charsPerToken

	var b strings.Builder
	for _, m := range r.Chunks {
		var block strings.Builder
		block.WriteString("---\n")
		if includeCitations {
			block.WriteString("Source: ")
			block.WriteString(m.Filename)
			block.WriteString("\n")
		}
		block.WriteString(strings.TrimSpace(m.Content))
		block.WriteString("\n---\n")

		if b.Len()+block.Len() > budget {
			break
		}
		b.WriteString(block.String())
	}
	return strings.TrimSpace(b.String())
}

// Filenames returns the distinct source files represented in the result,
// in rank order.
func (r *Result) Filenames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range r.Chunks {
		if !seen[m.Filename] {
			seen[m.Filename] = true
			names = append(names, m.Filename)
		}
	}
	return names
}
