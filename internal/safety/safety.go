// Package safety screens finished book content for mental-health risk
// language. It is pattern-based and deterministic: three compiled rule sets
// covering crisis language, medical-advice overreach, and trigger topics.
// Findings carry a severity; critical and high findings block publication,
// lower severities only ask for a disclaimer.
package safety

import (
	"regexp"
	"strings"

	"github.com/ghostline-ai/ghostline/internal/config"
)

// Severity orders findings from advisory to blocking.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a finding of this severity should stop
// publication outside strict mode.
func (s Severity) Blocking() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Finding is one pattern hit with enough context to review it by hand.
type Finding struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule"`
	Excerpt  string   `json:"excerpt"`
	Position int      `json:"position"`
}

// Result is the outcome of screening one manuscript.
type Result struct {
	IsSafe              bool      `json:"is_safe"`
	Findings            []Finding `json:"findings,omitempty"`
	RequiresDisclaimer  bool      `json:"requires_disclaimer"`
	SuggestedDisclaimer string    `json:"suggested_disclaimer,omitempty"`
}

const (
	// CategoryCrisis covers directive or encouraging language around
	// self-harm and suicide. Mentions of the topics themselves are
	// trigger-level, not crisis-level.
	CategoryCrisis = "crisis"
	// CategoryMedical covers advice that substitutes for professional
	// care: medication directives, dosage specifics, diagnosis claims.
	CategoryMedical = "medical_overreach"
	// CategoryTrigger covers topics that call for a content warning.
	CategoryTrigger = "trigger"
)

const (
	excerptWindow     = 60
	maxHitsPerRule    = 5
	disclaimerGeneral = "This book is for informational purposes only and is not a substitute for professional medical advice, diagnosis, or treatment. Always consult a qualified health provider with questions about a medical or mental-health condition."
	disclaimerCrisis  = "If you or someone you know is struggling or in crisis, help is available. Call or text 988 to reach the Suicide & Crisis Lifeline, or contact your local emergency services."
)

type rule struct {
	category string
	severity Severity
	name     string
	re       *regexp.Regexp
}

// The three pattern sets. Directive phrasing is blocking; topical mentions
// are advisory, since a mental-health book legitimately discusses them.
var rules = []rule{
	{CategoryCrisis, SeverityCritical, "self-harm instruction",
		regexp.MustCompile(`(?i)\b(how to|best way to|easiest way to|steps? (to|for))\s+(kill (yourself|oneself)|end (your|one'?s) (own )?life|commit suicide|harm yourself)\b`)},
	{CategoryCrisis, SeverityCritical, "self-harm encouragement",
		regexp.MustCompile(`(?i)\b(you (should|ought to) (kill yourself|end it all|give up on (life|living))|better off dead|no reason (left )?to live)\b`)},
	{CategoryCrisis, SeverityHigh, "suicide method detail",
		regexp.MustCompile(`(?i)\b(lethal dos(e|age)|suicide method|painless(ly)? (way to )?di(e|ying))\b`)},
	{CategoryMedical, SeverityHigh, "medication directive",
		regexp.MustCompile(`(?i)\b(stop taking (your |all |the )?(medication|meds|antidepressants?|prescriptions?)|quit (your )?(medication|meds)( cold turkey)?|(don'?t|do not|never) (need|see|consult) (a |your )?(doctor|therapist|psychiatrist|professional))\b`)},
	{CategoryMedical, SeverityHigh, "therapy substitute claim",
		regexp.MustCompile(`(?i)\b(replaces? (professional )?(therapy|treatment|medication)|cures? (your )?(depression|anxiety|ptsd|trauma|addiction)|instead of (seeing |visiting )?(a )?(therapist|doctor|psychiatrist))\b`)},
	{CategoryMedical, SeverityMedium, "dosage specifics",
		regexp.MustCompile(`(?i)\b(take|taking|dose of|dosage of)\s+\d+\s*(mg|mcg|milligrams?|micrograms?)\b`)},
	{CategoryMedical, SeverityMedium, "diagnosis claim",
		regexp.MustCompile(`(?i)\byou (definitely |certainly |clearly |probably )?(have|suffer from|are suffering from) (depression|anxiety|ptsd|bipolar( disorder)?|adhd|ocd|an? (eating|anxiety|panic) disorder)\b`)},
	{CategoryTrigger, SeverityLow, "crisis topic",
		regexp.MustCompile(`(?i)\b(suicid\w*|self[- ]harm\w*|suicidal ideation)\b`)},
	{CategoryTrigger, SeverityLow, "trigger topic",
		regexp.MustCompile(`(?i)\b(sexual (abuse|assault)|domestic (violence|abuse)|child abuse|overdos\w+|eating disorders?)\b`)},
}

// Screener applies the rule sets. In strict mode any finding blocks; the
// default only blocks on critical and high severities.
type Screener struct {
	strict bool
}

// NewScreener builds a Screener honoring the strict-mode flag.
func NewScreener(flags config.Flags) *Screener {
	return &Screener{strict: flags.StrictMode}
}

// Screen checks content against every rule set and decides safety.
func (s *Screener) Screen(content string) *Result {
	res := &Result{IsSafe: true}
	if strings.TrimSpace(content) == "" {
		return res
	}

	crisisTopic := false
	for _, r := range rules {
		hits := r.re.FindAllStringIndex(content, maxHitsPerRule)
		for _, loc := range hits {
			res.Findings = append(res.Findings, Finding{
				Category: r.category,
				Severity: r.severity,
				Rule:     r.name,
				Excerpt:  excerptAround(content, loc[0], loc[1]),
				Position: loc[0],
			})
			if r.category == CategoryCrisis || r.name == "crisis topic" {
				crisisTopic = true
			}
		}
	}

	for _, f := range res.Findings {
		if f.Severity.Blocking() || s.strict {
			res.IsSafe = false
			break
		}
	}

	if len(res.Findings) > 0 {
		res.RequiresDisclaimer = true
		res.SuggestedDisclaimer = disclaimerGeneral
		if crisisTopic {
			res.SuggestedDisclaimer = disclaimerGeneral + "\n\n" + disclaimerCrisis
		}
	}
	return res
}

// excerptAround returns the matched text with surrounding context, clipped
// to whole bytes of the window on each side.
func excerptAround(content string, start, end int) string {
	lo := start - excerptWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + excerptWindow
	if hi > len(content) {
		hi = len(content)
	}
	excerpt := strings.TrimSpace(content[lo:hi])
	return strings.Join(strings.Fields(excerpt), " ")
}
