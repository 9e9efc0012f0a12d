package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m4xw311/hearth/agent"
	"github.com/m4xw311/hearth/config"
	"github.com/m4xw311/hearth/llm"
	"github.com/m4xw311/hearth/session"
)

func newTestAgent(t *testing.T) *agent.Agent {
	t.Helper()
	t.Chdir(t.TempDir())

	cfg := &config.Config{
		LLMClient: "mock",
		Toolsets: []config.Toolset{
			{Name: "default", Tools: []string{}},
		},
	}

	sess, err := session.New("test-acp-session", session.StorageJSON)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	a, err := agent.New(cfg, sess, "default", agent.ModeAuto, &llm.MockLLMClient{}, agent.ToolVerbosityNone)
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	return a
}

// runACP feeds the given newline-delimited JSON-RPC requests to the server
// and returns the responses and notifications it wrote, one per line.
func runACP(t *testing.T, a *agent.Agent, requests ...string) []map[string]any {
	t.Helper()

	stdin := bytes.NewBufferString(strings.Join(requests, "\n") + "\n")
	var stdout bytes.Buffer

	err := Run(context.Background(), a, bufio.NewReader(stdin), bufio.NewWriter(&stdout), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var msgs []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line == "" {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("Server wrote invalid JSON line %q: %v", line, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestInitialize(t *testing.T) {
	a := newTestAgent(t)

	msgs := runACP(t, a,
		`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":1}}`)

	if len(msgs) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(msgs))
	}
	result, ok := msgs[0]["result"].(map[string]any)
	if !ok {
		t.Fatalf("Expected result object, got %v", msgs[0])
	}
	if result["protocolVersion"] != float64(1) {
		t.Errorf("Expected protocolVersion 1, got %v", result["protocolVersion"])
	}
	caps, ok := result["agentCapabilities"].(map[string]any)
	if !ok || caps["loadSession"] != true {
		t.Errorf("Expected loadSession capability, got %v", result["agentCapabilities"])
	}
}

func TestMethodNotFound(t *testing.T) {
	a := newTestAgent(t)

	msgs := runACP(t, a,
		`{"jsonrpc":"2.0","id":7,"method":"no/such/method"}`)

	if len(msgs) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(msgs))
	}
	errObj, ok := msgs[0]["error"].(map[string]any)
	if !ok {
		t.Fatalf("Expected error object, got %v", msgs[0])
	}
	if errObj["code"] != float64(-32601) {
		t.Errorf("Expected code -32601, got %v", errObj["code"])
	}
}

func TestSessionNewAndPrompt(t *testing.T) {
	a := newTestAgent(t)

	// First run: create a session and capture its ID.
	msgs := runACP(t, a,
		`{"jsonrpc":"2.0","id":1,"method":"session/new","params":{"cwd":"."}}`)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(msgs))
	}
	result, ok := msgs[0]["result"].(map[string]any)
	if !ok {
		t.Fatalf("Expected result object, got %v", msgs[0])
	}
	sid, _ := result["sessionId"].(string)
	if !strings.HasPrefix(sid, "sess_") {
		t.Fatalf("Expected generated session ID, got %q", sid)
	}

	// Second run: session/new followed by session/prompt in one stream, so
	// both land in the same server instance. The mock client answers with
	// plain content, ending the turn without tool calls.
	msgs = runACP(t, a,
		`{"jsonrpc":"2.0","id":1,"method":"session/new","params":{"cwd":"."}}`,
		`{"jsonrpc":"2.0","id":2,"method":"session/prompt","params":{"sessionId":"PLACEHOLDER","prompt":[{"type":"text","text":"hello"}]}}`)
	// The prompt referenced a stale session ID, so it must fail cleanly.
	last := msgs[len(msgs)-1]
	if _, hasErr := last["error"]; !hasErr {
		t.Fatalf("Expected error for unknown sessionId, got %v", last)
	}
}

func TestSessionPromptStreamsAnswer(t *testing.T) {
	a := newTestAgent(t)

	// Create the session out of band so the prompt can reference it by name.
	sess, err := session.New("sess_known", a.Config.Storage)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	sess.Save()
	sess.Close()

	msgs := runACP(t, a,
		`{"jsonrpc":"2.0","id":1,"method":"session/load","params":{"sessionId":"sess_known"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"session/prompt","params":{"sessionId":"sess_known","prompt":[{"type":"text","text":"hello"}]}}`)

	var sawChunk, sawEndTurn bool
	for _, msg := range msgs {
		if msg["method"] == "session/update" {
			params := msg["params"].(map[string]any)
			update := params["update"].(map[string]any)
			if update["sessionUpdate"] == "agent_message_chunk" {
				content := update["content"].(map[string]any)
				if text, _ := content["text"].(string); strings.Contains(text, "hello") {
					sawChunk = true
				}
			}
		}
		if result, ok := msg["result"].(map[string]any); ok {
			if result["stopReason"] == "end_turn" {
				sawEndTurn = true
			}
		}
	}
	if !sawChunk {
		t.Error("Expected an agent_message_chunk notification echoing the prompt")
	}
	if !sawEndTurn {
		t.Error("Expected a stopReason end_turn response")
	}
}

func TestSessionLoadReplaysHistory(t *testing.T) {
	a := newTestAgent(t)

	sess, err := session.New("sess_history", a.Config.Storage)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	err = sess.Append(
		session.Message{Role: "user", Content: "turn the heater on"},
		session.Message{Role: "assistant", ToolCalls: []session.ToolCall{
			{ToolCallID: "call_1", Name: "set_heater", Args: json.RawMessage(`{"state":"on"}`)},
		}},
		session.Message{Role: "tool", ToolCallID: "call_1", Content: "Heater turned on. Target temperature 21.0°C."},
		session.Message{Role: "assistant", Content: "The heater is on."},
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	sess.Save()
	sess.Close()

	msgs := runACP(t, a,
		`{"jsonrpc":"2.0","id":1,"method":"session/load","params":{"sessionId":"sess_history"}}`)

	var updates []string
	for _, msg := range msgs {
		if msg["method"] != "session/update" {
			continue
		}
		params := msg["params"].(map[string]any)
		update := params["update"].(map[string]any)
		updates = append(updates, update["sessionUpdate"].(string))
	}
	want := []string{"user_message_chunk", "tool_call", "tool_result", "agent_message_chunk"}
	if len(updates) != len(want) {
		t.Fatalf("Expected %d replay notifications, got %d: %v", len(want), len(updates), updates)
	}
	for i, kind := range want {
		if updates[i] != kind {
			t.Errorf("Replay notification %d: expected %s, got %s", i, kind, updates[i])
		}
	}

	// The final message must be the load completion response.
	last := msgs[len(msgs)-1]
	if _, hasErr := last["error"]; hasErr {
		t.Fatalf("Expected successful load, got %v", last)
	}
}

func TestSessionLoadUnknownSession(t *testing.T) {
	a := newTestAgent(t)

	msgs := runACP(t, a,
		`{"jsonrpc":"2.0","id":1,"method":"session/load","params":{"sessionId":"never-saved"}}`)

	if len(msgs) != 1 {
		t.Fatalf("Expected 1 response, got %d", len(msgs))
	}
	errObj, ok := msgs[0]["error"].(map[string]any)
	if !ok {
		t.Fatalf("Expected error object, got %v", msgs[0])
	}
	if errObj["code"] != float64(-32602) {
		t.Errorf("Expected code -32602, got %v", errObj["code"])
	}
}

func TestExtractUserTextWithResourceLink(t *testing.T) {
	testDir := t.TempDir()
	testFile := filepath.Join(testDir, "test.txt")
	testContent := "This is test file content"
	if err := os.WriteFile(testFile, []byte(testContent), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	fileURI := "file://" + testFile

	tests := []struct {
		name     string
		blocks   []contentBlock
		expected string
		contains []string
	}{
		{
			name: "text only",
			blocks: []contentBlock{
				{Type: "text", Text: "Hello"},
				{Type: "text", Text: "World"},
			},
			expected: "Hello\nWorld",
		},
		{
			name: "resource_link with file",
			blocks: []contentBlock{
				{Type: "text", Text: "Check this file:"},
				{
					Type:        "resource_link",
					URI:         fileURI,
					Name:        "test.txt",
					MimeType:    "text/plain",
					Title:       "Test File",
					Description: "A test file",
				},
			},
			contains: []string{
				"Check this file:",
				"=== Resource: test.txt ===",
				"Title: Test File",
				"Description: A test file",
				"URI: file://",
				"Type: text/plain",
				"--- File Contents ---",
				testContent,
				"--- End of File ---",
			},
		},
		{
			name: "resource_link with non-file URI",
			blocks: []contentBlock{
				{
					Type:     "resource_link",
					URI:      "https://example.com/file.txt",
					Name:     "remote.txt",
					MimeType: "text/plain",
				},
			},
			contains: []string{
				"=== Resource: remote.txt ===",
				"URI: https://example.com/file.txt",
				"[External resource - content not available]",
			},
		},
		{
			name: "mixed content",
			blocks: []contentBlock{
				{Type: "text", Text: "Start"},
				{
					Type: "resource_link",
					URI:  "https://example.com/doc.pdf",
					Name: "document.pdf",
				},
				{Type: "text", Text: "End"},
			},
			contains: []string{
				"Start",
				"=== Resource: document.pdf ===",
				"End",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractUserText(tt.blocks)

			if tt.expected != "" && result != tt.expected {
				t.Errorf("extractUserText() = %q, want %q", result, tt.expected)
			}
			for _, substr := range tt.contains {
				if !strings.Contains(result, substr) {
					t.Errorf("extractUserText() result does not contain %q\nGot: %q", substr, result)
				}
			}
		})
	}
}
