package prompts

import _ "embed"

// Prompt keys for the generation agents.
const (
	KeyOutlinePlanner  = "agents.outline_planner.system"
	KeyOutlineCritic   = "agents.outline_critic.system"
	KeyContentDrafter  = "agents.content_drafter.system"
	KeyVoiceEditor     = "agents.voice_editor.system"
	KeyFactChecker     = "agents.fact_checker.system"
	KeyCohesionAnalyst = "agents.cohesion_analyst.system"
	KeyVoiceAnalyst    = "agents.voice_analyst.system"
)

//go:embed templates/outline_planner.tmpl
var outlinePlannerPrompt string

//go:embed templates/outline_critic.tmpl
var outlineCriticPrompt string

//go:embed templates/content_drafter.tmpl
var contentDrafterPrompt string

//go:embed templates/voice_editor.tmpl
var voiceEditorPrompt string

//go:embed templates/fact_checker.tmpl
var factCheckerPrompt string

//go:embed templates/cohesion_analyst.tmpl
var cohesionAnalystPrompt string

//go:embed templates/voice_analyst.tmpl
var voiceAnalystPrompt string

// Defaults returns the embedded default prompts for every agent.
func Defaults() []EmbeddedPrompt {
	return []EmbeddedPrompt{
		{Key: KeyOutlinePlanner, Text: outlinePlannerPrompt, Description: "Outline planner system prompt - designs the chapter structure from source summaries"},
		{Key: KeyOutlineCritic, Text: outlineCriticPrompt, Description: "Outline critic system prompt - approves or returns targeted feedback on an outline"},
		{Key: KeyContentDrafter, Text: contentDrafterPrompt, Description: "Content drafter system prompt - writes grounded chapter prose with inline citations"},
		{Key: KeyVoiceEditor, Text: voiceEditorPrompt, Description: "Voice editor system prompt - rewrites prose toward the author's voice, preserving citations"},
		{Key: KeyFactChecker, Text: factCheckerPrompt, Description: "Fact checker system prompt - maps claims to source quotes and scores accuracy"},
		{Key: KeyCohesionAnalyst, Text: cohesionAnalystPrompt, Description: "Cohesion analyst system prompt - scores flow against previous chapters"},
		{Key: KeyVoiceAnalyst, Text: voiceAnalystPrompt, Description: "Voice analyst system prompt - extracts style traits from writing samples"},
	}
}
