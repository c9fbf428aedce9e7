package providers

import (
	"fmt"
	"strings"
)

const SystemPrompt = "You answer questions using only the document fragments provided. " +
	"If the fragments do not contain the answer, say so plainly. Cite fragments by number."

// BuildPrompt numbers each context fragment in the order given.
func BuildPrompt(req GenerateRequest) string {
	var b strings.Builder
	b.WriteString("Document fragments:\n\n")
	for i, c := range req.Context {
		fmt.Fprintf(&b, "[Fragment %d] (%s, page %d)\n%s\n\n", i+1, c.Filename, c.PageNumber, strings.TrimSpace(c.Text))
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(req.Question))
	b.WriteString("\n\nAnswer using only the fragments above.")
	return b.String()
}
