package executor

import (
	"strings"

	"chatq/internal/conversation"
)

// BuildPrompt flattens turns into one role-tagged prompt, one turn per line.
func BuildPrompt(turns []conversation.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}
