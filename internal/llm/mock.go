package llm

import (
	"context"
	"encoding/json"
)

// MockModel returns canned content for tests. Calls records every invocation.
type MockModel struct {
	Content string
	Err     error
	Calls   [][]Message
}

var _ ChatModel = (*MockModel)(nil)

// Complete records the call and returns the configured content or error.
func (m *MockModel) Complete(ctx context.Context, messages []Message, schema json.RawMessage) (string, error) {
	m.Calls = append(m.Calls, messages)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Content, nil
}
