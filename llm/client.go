// Package llm abstracts the completion providers behind a single interface.
// Each client converts the session transcript and the active tool schemas
// into its provider's wire format and converts the reply back into exactly
// one session.Message, which either carries content or proposes tool calls.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/m4xw311/hearth/session"
	"github.com/m4xw311/hearth/tools"
)

// Completion failure kinds. Both abort the current turn; retry policy, if
// any, is layered on top (see RetryClient).
var (
	// ErrUpstream is returned on network or provider failures.
	ErrUpstream = errors.New("llm provider error")

	// ErrRateLimited is returned when the provider rejects the request
	// with a rate limit.
	ErrRateLimited = errors.New("llm provider rate limited")
)

// LLMClient is the interface for interacting with a Large Language Model.
// Chat returns exactly one next message for the given history: either a
// content message or a tool-request message.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// MockLLMClient parrots the last user message back. It stands in for a real
// provider in tests and when no provider is configured.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	last := ""
	for _, msg := range messages {
		if msg.Role == "user" {
			last = msg.Content
		}
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("I am a mock LLM. You said: '%s'. I cannot use tools.", last),
	}, nil
}
