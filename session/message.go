package session

import (
	"encoding/json"
	"time"
)

// Message is a single entry in the conversation transcript. Messages are
// immutable once appended: corrections are modeled as new messages, never as
// mutation of existing ones.
//
// ID and CreatedAt are storage metadata assigned by the store on append.
// They are stripped before a transcript is handed to an LLM client.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       string     `json:"role"` // "user", "assistant", "tool" or "system"
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitzero"`
}

// ToolCall is a tool invocation proposed by the assistant. The ID is an
// opaque token issued by the provider; Args is the serialized argument
// payload exactly as the provider produced it. Parsing and validation happen
// in the tool dispatcher, not here.
type ToolCall struct {
	ToolCallID string          `json:"id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// IsToolRequest reports whether the message proposes at least one tool call.
func (m Message) IsToolRequest() bool {
	return len(m.ToolCalls) > 0
}

// stripMeta clears storage metadata in place.
func stripMeta(msgs []Message) []Message {
	for i := range msgs {
		msgs[i].ID = ""
		msgs[i].CreatedAt = time.Time{}
	}
	return msgs
}
