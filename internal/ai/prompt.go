package ai

import (
	"fmt"
	"strings"
)

// buildPrompt lays the prompt out in provenance-delimited sections: the
// reader's selected text first, then the retrieved book context, then the
// question. The sections are labeled so the model can tell highlighted text
// from retrieved chunks. With no context at all the model is still asked to
// answer from general knowledge rather than refuse.
func buildPrompt(query string, contextChunks []string, selectedText string) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant for readers of a technical book. ")
	b.WriteString("Answer the question using the provided context when it is relevant.\n\n")

	if selectedText != "" {
		b.WriteString("[SELECTED TEXT]\n")
		b.WriteString(selectedText)
		b.WriteString("\n\n")
	}

	if len(contextChunks) > 0 {
		for i, chunk := range contextChunks {
			fmt.Fprintf(&b, "[Context %d]\n%s\n\n", i+1, chunk)
		}
	} else if selectedText == "" {
		b.WriteString("No book context was retrieved for this question. ")
		b.WriteString("Answer from general knowledge and mention that the book may cover it in more depth.\n\n")
	}

	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}
