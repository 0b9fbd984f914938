package ai

import (
	"strings"

	"policymitr/internal/rag"
)

const assistantName = "Mitr"

// BuildPrompt flattens an assembled context into a single prompt. Evidence
// comes first, then the conversation, then the question.
func BuildPrompt(c rag.AssembledContext) string {
	var b strings.Builder
	if len(c.Evidence) > 0 {
		b.WriteString("You are " + assistantName + ", an AI policy assistant. Answer accurately based ONLY on this context:\n")
		b.WriteString(strings.Join(c.Evidence, "\n\n"))
		b.WriteString("\n\n")
	} else {
		b.WriteString("You are " + assistantName + ", an expert AI policy assistant for Indian citizens.\n")
		b.WriteString("You have extensive knowledge of government schemes, policies, laws, and administrative procedures.\n")
		b.WriteString("Please answer the user's question accurately, comprehensively, and in a simple, easy-to-understand manner.\n\n")
	}
	b.WriteString("Recent History:\n")
	b.WriteString(FormatHistory(c.History))
	b.WriteString("\n\nUser: ")
	b.WriteString(c.Query)
	b.WriteString("\nAssistant:")
	return b.String()
}

// FormatHistory renders turns as "role: content" lines.
func FormatHistory(turns []rag.ConversationTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, string(t.Role)+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

// StripCodeFence removes a surrounding markdown code fence (and a leading
// "json" tag) that models like to wrap JSON answers in.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
				lines = lines[:len(lines)-1]
			}
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	if strings.HasPrefix(s, "json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "json"))
	}
	return s
}
