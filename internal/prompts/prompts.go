// Package prompts manages the system prompts for ghostline's agents.
//
// Embedded .tmpl files are the source of truth for defaults. A file named
// <home>/prompts/<key>.tmpl overrides the embedded default, letting users
// tune an agent's behavior without rebuilding.
package prompts

// EmbeddedPrompt is a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // hierarchical key: agents.content_drafter.system
	Text        string   // prompt text (Go template)
	Description string   // human-readable description
	Variables   []string // extracted template variables
	Hash        string   // SHA256 of the text for change detection
}

// ResolvedPrompt is the result of resolving a prompt key.
type ResolvedPrompt struct {
	Key        string   `json:"key"`
	Text       string   `json:"text"`
	Variables  []string `json:"variables,omitempty"`
	IsOverride bool     `json:"is_override"` // true if loaded from the override dir
}
