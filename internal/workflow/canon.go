package workflow

import (
	"fmt"
	"strings"

	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/chapter"
)

// buildCanon distills a finalized chapter into the grounded memory later
// chapters draft against. Only verified claims become commitments;
// everything shaky is carried as review or unsupported so the next chapter
// does not build on it.
func buildCanon(outlineCh book.OutlineChapter, st *chapter.State) book.CanonBlock {
	blk := book.CanonBlock{
		ChapterNumber:  outlineCh.Number,
		Title:          outlineCh.Title,
		OutlineSummary: outlineCh.Summary,
		KeyPoints:      outlineCh.KeyPoints,
		CitationsOK:    st.CitationReport != nil && st.CitationReport.CitationsOK(),
		StyleIssues:    st.StyleIssues,
	}
	for _, cm := range st.ClaimMappings {
		switch {
		case cm.NeedsHumanReview:
			blk.NeedsReview = append(blk.NeedsReview, cm.Claim)
		case !cm.IsSupported:
			blk.Unsupported = append(blk.Unsupported, cm.Claim)
		case cm.QuoteVerified:
			blk.GroundedCommitments = append(blk.GroundedCommitments, cm.Claim)
		}
	}
	return blk
}

// upsertCanon records a chapter's block, replacing an earlier block for the
// same chapter so a redraft after resume does not duplicate memory. Blocks
// for distinct chapters are only ever appended.
func upsertCanon(canon []book.CanonBlock, blk book.CanonBlock) []book.CanonBlock {
	for i := range canon {
		if canon[i].ChapterNumber == blk.ChapterNumber {
			canon[i] = blk
			return canon
		}
	}
	return append(canon, blk)
}

// lastCanon returns the trailing window of canon blocks fed to the next
// chapter's drafting run.
func lastCanon(canon []book.CanonBlock, window int) []book.CanonBlock {
	if window <= 0 || len(canon) <= window {
		return canon
	}
	return canon[len(canon)-window:]
}

// chapterSummary condenses a finished chapter for the cohesion analyst.
// When drafting produced no prose the outline summary stands in.
func chapterSummary(outlineCh book.OutlineChapter, ch *book.Chapter) string {
	const maxChars = 600
	body := strings.Join(strings.Fields(ch.ContentClean), " ")
	if body == "" {
		body = outlineCh.Summary
	}
	if len(body) > maxChars {
		cut := strings.LastIndexByte(body[:maxChars], ' ')
		if cut <= 0 {
			cut = maxChars
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("%q: %s", outlineCh.Title, body)
}
