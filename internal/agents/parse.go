package agents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Parse decodes a model reply into T, tolerating markdown code fences and
// surrounding prose. Callers that must never fail catch the error and
// substitute their role's default.
func Parse[T any](content string) (T, error) {
	var out T
	raw, err := parseJSON(content)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("reply JSON does not match expected shape: %w", err)
	}
	return out, nil
}

// parseJSON extracts a JSON document from model output, with lightweight
// recovery for code fences and embedded objects.
func parseJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty reply")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize reply JSON: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("failed to parse reply as JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop the opening fence line (possibly "```json").
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate pulls the outermost {...} or [...] span out of prose.
func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	objectStart := strings.Index(trimmed, "{")
	arrayStart := strings.Index(trimmed, "[")

	start := -1
	closeChar := ""
	switch {
	case objectStart >= 0 && arrayStart >= 0:
		if objectStart < arrayStart {
			start, closeChar = objectStart, "}"
		} else {
			start, closeChar = arrayStart, "]"
		}
	case objectStart >= 0:
		start, closeChar = objectStart, "}"
	case arrayStart >= 0:
		start, closeChar = arrayStart, "]"
	default:
		return ""
	}

	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

// ValidateSchema checks a parsed document against a JSON schema expressed as
// a map literal. Used where malformed structure would poison downstream
// state (the outline feeding every chapter).
func ValidateSchema(schemaDoc map[string]any, parsed any) error {
	schemaRaw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("failed to serialize schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaRaw)); err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	// Round-trip through JSON so typed structs validate as plain documents.
	doc, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	var generic any
	if err := json.Unmarshal(doc, &generic); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}

	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("reply does not match schema: %w", err)
	}
	return nil
}
