package workflow

import (
	"strings"
	"testing"

	"github.com/ghostline-ai/ghostline/internal/book"
	"github.com/ghostline-ai/ghostline/internal/chapter"
)

func TestBuildCanonBucketsClaims(t *testing.T) {
	outlineCh := book.OutlineChapter{
		Number:    2,
		Title:     "Naps",
		Summary:   "Short naps, used well.",
		KeyPoints: []string{"timing", "duration"},
	}
	st := &chapter.State{
		ClaimMappings: []book.ClaimMapping{
			{Claim: "verified claim", IsSupported: true, QuoteVerified: true},
			{Claim: "shaky claim", IsSupported: true, NeedsHumanReview: true},
			{Claim: "invented claim", IsSupported: false},
			{Claim: "supported but unverified", IsSupported: true, QuoteVerified: false},
		},
		CitationReport: &book.CitationReport{
			InlineTotal:    1,
			InlineParsed:   1,
			InlineVerified: 1,
			InlineQuality:  1.0,
		},
		StyleIssues: []string{"First-person sentence: \"I think so.\""},
	}

	blk := buildCanon(outlineCh, st)

	if blk.ChapterNumber != 2 || blk.Title != "Naps" || blk.OutlineSummary != "Short naps, used well." {
		t.Errorf("header fields = %+v", blk)
	}
	if len(blk.GroundedCommitments) != 1 || blk.GroundedCommitments[0] != "verified claim" {
		t.Errorf("GroundedCommitments = %v, want only the verified claim", blk.GroundedCommitments)
	}
	if len(blk.NeedsReview) != 1 || blk.NeedsReview[0] != "shaky claim" {
		t.Errorf("NeedsReview = %v", blk.NeedsReview)
	}
	if len(blk.Unsupported) != 1 || blk.Unsupported[0] != "invented claim" {
		t.Errorf("Unsupported = %v", blk.Unsupported)
	}
	if !blk.CitationsOK {
		t.Error("CitationsOK = false, want true from a clean report")
	}
	if len(blk.StyleIssues) != 1 {
		t.Errorf("StyleIssues = %v", blk.StyleIssues)
	}
}

func TestUpsertCanonReplacesSameChapter(t *testing.T) {
	canon := []book.CanonBlock{
		{ChapterNumber: 1, Title: "one"},
		{ChapterNumber: 2, Title: "two"},
	}

	canon = upsertCanon(canon, book.CanonBlock{ChapterNumber: 2, Title: "two redrafted"})
	if len(canon) != 2 || canon[1].Title != "two redrafted" {
		t.Errorf("after redraft upsert: %+v", canon)
	}

	canon = upsertCanon(canon, book.CanonBlock{ChapterNumber: 3, Title: "three"})
	if len(canon) != 3 || canon[2].ChapterNumber != 3 {
		t.Errorf("after append upsert: %+v", canon)
	}
}

func TestLastCanonWindow(t *testing.T) {
	canon := []book.CanonBlock{
		{ChapterNumber: 1}, {ChapterNumber: 2}, {ChapterNumber: 3}, {ChapterNumber: 4},
	}

	got := lastCanon(canon, 3)
	if len(got) != 3 || got[0].ChapterNumber != 2 {
		t.Errorf("lastCanon(4 blocks, 3) = %+v, want chapters 2..4", got)
	}
	if got := lastCanon(canon, 0); len(got) != 4 {
		t.Errorf("lastCanon with window 0 = %d blocks, want all", len(got))
	}
	if got := lastCanon(canon[:2], 3); len(got) != 2 {
		t.Errorf("lastCanon under window = %d blocks, want 2", len(got))
	}
}

func TestChapterSummaryFallsBackToOutline(t *testing.T) {
	outlineCh := book.OutlineChapter{Number: 1, Title: "Anchors", Summary: "Start with the schedule."}

	withContent := chapterSummary(outlineCh, &book.Chapter{ContentClean: "The schedule comes first.\n\nEverything else follows."})
	if !strings.Contains(withContent, "The schedule comes first.") {
		t.Errorf("summary = %q, want drafted prose", withContent)
	}
	if strings.Contains(withContent, "\n") {
		t.Errorf("summary = %q, want single line", withContent)
	}

	empty := chapterSummary(outlineCh, &book.Chapter{})
	if !strings.Contains(empty, "Start with the schedule.") {
		t.Errorf("summary = %q, want outline fallback", empty)
	}

	long := chapterSummary(outlineCh, &book.Chapter{ContentClean: strings.Repeat("word ", 400)})
	if len(long) > 620 {
		t.Errorf("summary length = %d, want truncated near 600", len(long))
	}
	if !strings.HasSuffix(long, "...") {
		t.Errorf("truncated summary should end with ellipsis: %q", long[len(long)-12:])
	}
}
