package generator

import (
	"fmt"
	"strings"

	"github.com/heishia/thread-auto/internal/posts"
	"github.com/heishia/thread-auto/internal/settings"
	"github.com/heishia/thread-auto/internal/styleref"
)

const systemPrompt = `You write posts for Threads in the author's personal voice.
Posts are short, direct, and written like a person talking, not a brand.
Respond with ONLY a JSON object of the form {"mainPost": "...", "thread": ["...", ...]}.
"mainPost" is the post itself, under 500 characters. "thread" holds optional
follow-up segments when the idea genuinely needs more room; use an empty array otherwise.
No markdown, no hashtags unless they genuinely add value.`

// buildUserPrompt assembles the compose prompt from the per-type instruction,
// the topic, the research summary, and retrieved style references.
func buildUserPrompt(cfg settings.Settings, postType posts.PostType, topic, research string, refs []styleref.Match) string {
	var b strings.Builder

	if instruction := cfg.Prompts[postType]; instruction != "" {
		b.WriteString(instruction)
		b.WriteString("\n\n")
	}

	if strings.TrimSpace(topic) != "" {
		fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	} else {
		b.WriteString("Pick the strongest angle from the research below.\n\n")
	}

	if strings.TrimSpace(research) != "" {
		b.WriteString("Current context from research:\n")
		b.WriteString(research)
		b.WriteString("\n\n")
	}

	if len(refs) > 0 {
		b.WriteString("Match the tone and rhythm of these past posts by the author:\n")
		for i, match := range refs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, match.Reference.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Write the post now.")
	return b.String()
}
