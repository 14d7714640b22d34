package book

// Stylometry holds the deterministic writing-style features measured over a text.
type Stylometry struct {
	AvgSentenceLength    float64 `json:"avg_sentence_length"`
	SentenceLengthStd    float64 `json:"sentence_length_std"`
	AvgWordLength        float64 `json:"avg_word_length"`
	VocabularyComplexity float64 `json:"vocabulary_complexity"` // unique/total
	VocabularyRichness   float64 `json:"vocabulary_richness"`   // hapax/unique
	PunctuationDensity   float64 `json:"punctuation_density"`   // per 100 words
	QuestionRatio        float64 `json:"question_ratio"`        // per sentence
	ExclamationRatio     float64 `json:"exclamation_ratio"`     // per sentence
	CommaDensity         float64 `json:"comma_density"`
	SemicolonDensity     float64 `json:"semicolon_density"`
	AvgParagraphLength   float64 `json:"avg_paragraph_length"`
}

// VoiceProfile captures an author's voice from uploaded writing samples.
// One per project; read-only after creation.
type VoiceProfile struct {
	ProjectID           string     `json:"project_id"`
	Embedding           []float32  `json:"embedding,omitempty"`
	Stylometry          Stylometry `json:"stylometry"`
	CommonPhrases       []string   `json:"common_phrases,omitempty"`
	SentenceStarters    []string   `json:"sentence_starters,omitempty"`
	TransitionWords     []string   `json:"transition_words,omitempty"`
	StyleDescription    string     `json:"style_description,omitempty"`
	SimilarityThreshold float64    `json:"similarity_threshold"`
	EmbeddingWeight     float64    `json:"embedding_weight"`
}
