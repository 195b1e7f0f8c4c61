// Package generate assembles grounded prompts and talks to the completion provider.
package generate

import (
	"fmt"
	"strings"

	"github.com/smartdocs/smartdocs/internal/models"
)

// BuildPrompt renders the question and its ranked context into a single prompt.
// Each context block is numbered and carries its document name and source path so
// the model can cite where a fact came from.
func BuildPrompt(question string, ranked *models.RankedContext) string {
	var blocks []string
	for i, sc := range ranked.Chunks {
		name := sc.Chunk.Metadata.Title
		if name == "" {
			name = sc.Chunk.SourceID
		}
		header := fmt.Sprintf("[%d] %s", i+1, name)
		if path := sc.Chunk.Metadata.SourcePath; path != "" {
			header += " - " + path
		}
		blocks = append(blocks, header+":\n"+sc.Chunk.Text)
	}
	context := strings.Join(blocks, "\n\n---\n\n")

	var b strings.Builder
	b.WriteString("You are a document analysis assistant. Your task is ONLY to extract and\n")
	b.WriteString("summarize information from the documents provided below. Do not write emails,\n")
	b.WriteString("do not use greetings or sign-offs, and do not speak on behalf of any person.\n\n")
	b.WriteString("QUESTION:\n")
	b.WriteString(question)
	b.WriteString("\n\nDOCUMENTS:\n")
	b.WriteString(context)
	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString("1. Answer only the question asked.\n")
	b.WriteString("2. Extract the relevant facts, numbers, names, and dates from the documents.\n")
	b.WriteString("3. Use a bullet list when several points are relevant.\n")
	b.WriteString("4. Reference the numbered document markers, e.g. [2], when citing a source.\n")
	b.WriteString("5. If the answer is not in the documents, say: \"This information is not present in the provided documents.\"\n\n")
	b.WriteString("ANSWER:")
	return b.String()
}
