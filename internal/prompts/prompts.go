// Package prompts assembles system prompts for the coaching assistant.
package prompts

import "strings"

const basePersona = `You are Nisa, a warm, practical instructional coach for teachers.
You ground advice in the expertise documents available through your tools, cite
which document informed a recommendation, and keep responses concrete and brief.
When a teacher shares student work or data, look at it before advising.`

const artifactGuidance = `When asked to produce a reusable artifact (a lesson plan,
rubric, parent email, or data summary), use the createDocument tool instead of
inlining it, then summarize what you created in one or two sentences.`

const embedPersona = `You are Nisa, answering inside a small embedded widget.
Keep responses short. You have no account context and no document tools.`

// EmbedMode is a mini-chat mode name.
const (
	ModeGeneral = "general"
	ModeCSV     = "csv"
	ModeImage   = "image"
)

// System composes the full-app system prompt. Extra sections (for example a
// remote-managed addendum) are appended in order, skipping blanks.
func System(extra ...string) string {
	sections := []string{basePersona, artifactGuidance}
	for _, s := range extra {
		if strings.TrimSpace(s) != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n\n")
}

// EmbedSystem composes the system prompt for the embedded widget surface.
func EmbedSystem(mode string) string {
	switch mode {
	case ModeCSV:
		return embedPersona + "\n\nThe user pasted CSV data. Analyze it directly; show small tables, not code."
	case ModeImage:
		return embedPersona + "\n\nThe user shared an image of student work. Describe what you observe before advising."
	default:
		return embedPersona
	}
}

// ValidEmbedMode reports whether mode is a known mini-chat mode.
func ValidEmbedMode(mode string) bool {
	return mode == ModeGeneral || mode == ModeCSV || mode == ModeImage
}

// TitleInstruction is the prompt for deriving a chat title from the first
// user message.
const TitleInstruction = `Generate a short title (at most 80 characters, no quotes,
no colons) summarizing the user's message.`
