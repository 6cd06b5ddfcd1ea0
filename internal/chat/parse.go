package chat

import (
	"encoding/json"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// apologyAnswer is returned when the model output is unusable or the model
// call itself fails. Answer synthesis is advisory: a broken model response
// must not fail the request.
const apologyAnswer = "I'm sorry, I could not produce an answer this time. Please try again."

// noMatchAnswer is returned without calling the model when retrieval found
// nothing to ground an answer on.
const noMatchAnswer = "I could not find anything relevant in your documents."

// parseResult recovers a ChatResult from raw model output. Strategies are
// tried in order: the whole output as JSON, the first JSON object embedded in
// surrounding prose, then the raw text as a citation-less answer.
func parseResult(raw string) models.ChatResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return models.ChatResult{Answer: apologyAnswer, Citations: []models.Citation{}}
	}

	var result models.ChatResult
	if err := json.Unmarshal([]byte(trimmed), &result); err == nil && result.Answer != "" {
		return normalized(result)
	}

	if embedded := extractJSONObject(trimmed); embedded != "" {
		result = models.ChatResult{}
		if err := json.Unmarshal([]byte(embedded), &result); err == nil && result.Answer != "" {
			return normalized(result)
		}
	}

	return models.ChatResult{Answer: trimmed, Citations: []models.Citation{}}
}

func normalized(result models.ChatResult) models.ChatResult {
	if result.Citations == nil {
		result.Citations = []models.Citation{}
	}
	return result
}

// extractJSONObject returns the first balanced {...} region of s, or "".
// Handles string literals and escapes so braces inside values do not
// unbalance the scan.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// validCitations keeps only citations that exactly match an offered context:
// same folder name, same file name, same inclusive line range. The model is
// not trusted to invent sources.
func validCitations(citations []models.Citation, contexts []*models.ChunkContext) []models.Citation {
	valid := make([]models.Citation, 0, len(citations))
	for _, c := range citations {
		for _, cc := range contexts {
			if c.Folder == cc.FolderName && c.File == cc.FileName &&
				c.Lines[0] == cc.StartLine && c.Lines[1] == cc.EndLine {
				valid = append(valid, c)
				break
			}
		}
	}
	return valid
}
