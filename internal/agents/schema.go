package agents

// OutlineSchema validates planner replies before they are allowed to drive
// chapter generation.
var OutlineSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":   map[string]any{"type": "string", "minLength": 1},
		"premise": map[string]any{"type": "string"},
		"chapters": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"number":          map[string]any{"type": "integer"},
					"title":           map[string]any{"type": "string", "minLength": 1},
					"summary":         map[string]any{"type": "string"},
					"key_points":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"estimated_words": map[string]any{"type": "integer"},
				},
				"required": []any{"number", "title", "summary"},
			},
		},
		"themes":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"target_audience": map[string]any{"type": "string"},
	},
	"required": []any{"title", "chapters"},
}

// CritiqueSchema validates critic replies.
var CritiqueSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"approved": map[string]any{"type": "boolean"},
		"feedback": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []any{"approved"},
}
