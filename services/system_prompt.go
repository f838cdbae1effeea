package services

import (
	"fmt"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"github/itish2003/docbot/models"
)

// GetSystemPrompt defines the core instructions for answering from uploaded documents.
func GetSystemPrompt() *genai.Content {
	prompt := `You are a helpful assistant that answers questions about the documents a user has uploaded.

You are given context passages retrieved from those documents. Answer the question using only that context.
If the context does not contain the answer, say that you could not find it in the uploaded documents.
Do not invent information and do not mention the retrieval process.`

	contents := genai.Text(prompt)
	if len(contents) == 0 {
		return nil
	}
	return contents[0]
}

// buildQuestionPrompt lays out the retrieved passages followed by the question.
func buildQuestionPrompt(question string, docs []models.SourceDocument) string {
	var sb strings.Builder
	sb.WriteString("Context information is below.\n---------------------\n")
	for i, d := range docs {
		source := ""
		if s, ok := d.Metadata["source_file"].(string); ok {
			source = filepath.Base(s)
		}
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, source, strings.TrimSpace(d.Text))
	}
	sb.WriteString("---------------------\n")
	sb.WriteString("Given the context information and not prior knowledge, answer the query.\n")
	sb.WriteString("Query: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer: ")
	return sb.String()
}
