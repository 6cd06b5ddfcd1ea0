package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

const systemPrompt = `You are a helpful assistant that answers questions using only the provided document excerpts.
Each excerpt is labeled with its folder, file, and line range.
Answer in the same language as the question.
Cite every excerpt you rely on. A citation names the folder, the file, and the exact line range of the excerpt, copied verbatim from its label.
If the excerpts do not contain the answer, say so instead of guessing.
Respond with a JSON object: {"answer": string, "citations": [{"folder": string, "file": string, "lines": [start, end]}]}.`

const freeformPrompt = `You are a helpful assistant. Answer the question directly.
Respond with a JSON object: {"answer": string, "citations": []}.`

// answerSchema constrains the model output to the answer/citations shape.
var answerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"answer": {"type": "string"},
		"citations": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"folder": {"type": "string"},
					"file": {"type": "string"},
					"lines": {
						"type": "array",
						"items": {"type": "integer"},
						"minItems": 2,
						"maxItems": 2
					}
				},
				"required": ["folder", "file", "lines"],
				"additionalProperties": false
			}
		}
	},
	"required": ["answer", "citations"],
	"additionalProperties": false
}`)

// buildMessages assembles the grounded prompt: system instructions, one
// labeled block per context, then the question.
func buildMessages(question string, contexts []*models.ChunkContext) []llm.Message {
	var b strings.Builder
	b.WriteString("Document excerpts:\n\n")
	for i, cc := range contexts {
		fmt.Fprintf(&b, "[%d] folder=%q file=%q lines=%d-%d\n%s\n\n",
			i+1, cc.FolderName, cc.FileName, cc.StartLine, cc.EndLine, cc.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func buildFreeformMessages(question string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: freeformPrompt},
		{Role: "user", Content: question},
	}
}
