// Package llm provides chat-completion access to an external language model.
package llm

import (
	"context"
	"encoding/json"
)

// Message is a role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatModel produces a completion for a conversation. When schema is non-nil
// the provider is asked to conform its output to that JSON schema; the raw
// content is returned either way since providers do not always comply.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message, schema json.RawMessage) (string, error)
}
