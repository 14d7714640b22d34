// Package voice measures and compares writing style. Stylometry is
// deterministic; comparisons blend it with embedding similarity per the
// project's voice profile.
package voice

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/montanaflynn/stats"

	"github.com/ghostline-ai/ghostline/internal/book"
)

var (
	sentenceSplit  = regexp.MustCompile(`[.!?]+\s+`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
)

// featureCaps are the soft caps used to bring raw features onto a shared
// scale. Ratio features cap at 1 and pass through unchanged.
var featureCaps = [11]float64{
	40,  // avg sentence length, words
	20,  // sentence length std dev
	10,  // avg word length, chars
	1,   // vocabulary complexity
	1,   // vocabulary richness
	30,  // punctuation per 100 words
	1,   // question ratio
	1,   // exclamation ratio
	20,  // commas per 100 words
	5,   // semicolons per 100 words
	200, // avg paragraph length, words
}

// featureWeights order the features by how strongly each one signals voice.
var featureWeights = [11]float64{2, 1, 1.5, 2, 1.5, 1, 1, 1, 0.5, 0.5, 0.5}

// ComputeStylometry measures the 11 style features over a text. Empty or
// word-free text returns the zero value.
func ComputeStylometry(text string) book.Stylometry {
	allWords := tokenize(text)
	if len(allWords) == 0 {
		return book.Stylometry{}
	}
	totalWords := float64(len(allWords))

	var s book.Stylometry

	// Sentence features
	sents := splitSentences(text)
	var lengths stats.Float64Data
	for _, sent := range sents {
		if n := len(tokenize(sent)); n > 0 {
			lengths = append(lengths, float64(n))
		}
	}
	if len(lengths) > 0 {
		s.AvgSentenceLength, _ = stats.Mean(lengths)
		s.SentenceLengthStd, _ = stats.StandardDeviation(lengths)
	}
	numSentences := float64(len(sents))
	if numSentences > 0 {
		s.QuestionRatio = float64(strings.Count(text, "?")) / numSentences
		s.ExclamationRatio = float64(strings.Count(text, "!")) / numSentences
	}

	// Word features
	var wordLengths stats.Float64Data
	unique := make(map[string]int)
	for _, w := range allWords {
		wordLengths = append(wordLengths, float64(len([]rune(w))))
		unique[w]++
	}
	s.AvgWordLength, _ = stats.Mean(wordLengths)
	s.VocabularyComplexity = float64(len(unique)) / totalWords
	hapax := 0
	for _, n := range unique {
		if n == 1 {
			hapax++
		}
	}
	if len(unique) > 0 {
		s.VocabularyRichness = float64(hapax) / float64(len(unique))
	}

	// Punctuation features, per 100 words
	punct := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punct++
		}
	}
	s.PunctuationDensity = float64(punct) / totalWords * 100
	s.CommaDensity = float64(strings.Count(text, ",")) / totalWords * 100
	s.SemicolonDensity = float64(strings.Count(text, ";")) / totalWords * 100

	// Paragraph features
	var paraLengths stats.Float64Data
	for _, p := range paragraphSplit.Split(text, -1) {
		if n := len(tokenize(p)); n > 0 {
			paraLengths = append(paraLengths, float64(n))
		}
	}
	if len(paraLengths) > 0 {
		s.AvgParagraphLength, _ = stats.Mean(paraLengths)
	}

	return s
}

// Vector normalizes a stylometry to the fixed 11-vector used for comparison.
func Vector(s book.Stylometry) [11]float64 {
	raw := [11]float64{
		s.AvgSentenceLength,
		s.SentenceLengthStd,
		s.AvgWordLength,
		s.VocabularyComplexity,
		s.VocabularyRichness,
		s.PunctuationDensity,
		s.QuestionRatio,
		s.ExclamationRatio,
		s.CommaDensity,
		s.SemicolonDensity,
		s.AvgParagraphLength,
	}
	for i := range raw {
		raw[i] /= featureCaps[i]
	}
	return raw
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
