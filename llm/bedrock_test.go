package llm

import (
	"encoding/json"
	"testing"

	"github.com/m4xw311/hearth/session"
)

func TestConvertMessagesToBedrockFormat(t *testing.T) {
	// User message
	messages := []session.Message{
		{Role: "user", Content: "Hello, world!"},
	}
	result, _ := convertMessagesToBedrockFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	if result[0]["role"] != "user" {
		t.Errorf("Expected role 'user', got '%s'", result[0]["role"])
	}

	// Assistant message with content
	messages = []session.Message{
		{Role: "assistant", Content: "Hello! How can I help you?"},
	}
	result, _ = convertMessagesToBedrockFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	if result[0]["role"] != "assistant" {
		t.Errorf("Expected role 'assistant', got '%s'", result[0]["role"])
	}

	// Assistant message with a tool call
	messages = []session.Message{
		{
			Role: "assistant",
			ToolCalls: []session.ToolCall{{
				ToolCallID: "call_1",
				Name:       "set_heater",
				Args:       json.RawMessage(`{"state":"on"}`),
			}},
		},
	}
	result, _ = convertMessagesToBedrockFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	content, ok := result[0]["content"].([]map[string]any)
	if !ok || len(content) != 1 {
		t.Fatalf("Expected one content block, got %v", result[0]["content"])
	}
	if content[0]["type"] != "tool_use" || content[0]["id"] != "call_1" {
		t.Errorf("Unexpected tool_use block: %v", content[0])
	}
	input, ok := content[0]["input"].(map[string]any)
	if !ok || input["state"] != "on" {
		t.Errorf("Tool call args not decoded into the request: %v", content[0]["input"])
	}

	// Tool result message links back via tool_use_id
	messages = []session.Message{
		{Role: "tool", ToolCallID: "call_1", Content: "Heater turned on."},
	}
	result, _ = convertMessagesToBedrockFormat(messages)
	content, ok = result[0]["content"].([]map[string]any)
	if !ok || content[0]["tool_use_id"] != "call_1" {
		t.Errorf("Expected tool_result linked to call_1, got %v", result[0]["content"])
	}

	// System message becomes the system prompt
	messages = []session.Message{
		{Role: "system", Content: "You are a home assistant."},
		{Role: "user", Content: "hi"},
	}
	result, systemPrompt := convertMessagesToBedrockFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected system message to be lifted out, got %d messages", len(result))
	}
	if systemPrompt != "You are a home assistant." {
		t.Errorf("Unexpected system prompt: %q", systemPrompt)
	}
}

func TestProcessBedrockResponseText(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"All done."}]}`)
	msg, err := processBedrockResponse(body)
	if err != nil {
		t.Fatalf("processBedrockResponse failed: %v", err)
	}
	if msg.Role != "assistant" || msg.Content != "All done." {
		t.Errorf("Unexpected message: %+v", msg)
	}
	if msg.IsToolRequest() {
		t.Error("Did not expect tool calls")
	}
}

func TestProcessBedrockResponseToolUse(t *testing.T) {
	body := []byte(`{"content":[{"type":"tool_use","id":"tu_1","name":"get_weather","input":{"city":"Oslo"}}]}`)
	msg, err := processBedrockResponse(body)
	if err != nil {
		t.Fatalf("processBedrockResponse failed: %v", err)
	}
	if !msg.IsToolRequest() {
		t.Fatal("Expected a tool request")
	}
	tc := msg.ToolCalls[0]
	if tc.ToolCallID != "tu_1" || tc.Name != "get_weather" {
		t.Errorf("Unexpected tool call: %+v", tc)
	}
	var args map[string]any
	if err := json.Unmarshal(tc.Args, &args); err != nil || args["city"] != "Oslo" {
		t.Errorf("Unexpected args: %s (%v)", tc.Args, err)
	}
}
