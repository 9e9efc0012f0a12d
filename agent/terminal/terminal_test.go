package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/m4xw311/hearth/agent"
	"github.com/m4xw311/hearth/config"
	"github.com/m4xw311/hearth/llm"
	"github.com/m4xw311/hearth/session"
	"github.com/m4xw311/hearth/tools"
)

// scriptedLLM replays a fixed sequence of replies, then keeps answering with
// plain content.
type scriptedLLM struct {
	replies []*session.Message
	calls   int
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []session.Message, _ []tools.Tool) (*session.Message, error) {
	if s.calls >= len(s.replies) {
		return &session.Message{Role: "assistant", Content: "done"}, nil
	}
	reply := s.replies[s.calls]
	s.calls++
	return reply, nil
}

// createTestConfig creates a config with a default toolset for testing
func createTestConfig() *config.Config {
	return &config.Config{
		Toolsets: []config.Toolset{
			{
				Name:  "default",
				Tools: []string{},
			},
		},
	}
}

func newTestSession(t *testing.T, name string) *session.Session {
	t.Helper()
	sess, err := session.New(name, session.StorageJSON)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestTerminalNew(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := createTestConfig()
	sess := newTestSession(t, "test-session")

	mockClient := &llm.MockLLMClient{}
	testAgent, err := agent.New(cfg, sess, "default", agent.ModeAuto, mockClient, agent.ToolVerbosityNone)
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}

	term := New(testAgent)
	if term == nil {
		t.Fatal("Expected terminal instance, got nil")
	}
	if term.agent != testAgent {
		t.Fatal("Terminal agent doesn't match the provided agent")
	}
}

func TestTerminalProcessTurn(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := createTestConfig()
	sess := newTestSession(t, "test-session")

	mockClient := &llm.MockLLMClient{}
	testAgent, err := agent.New(cfg, sess, "default", agent.ModeAuto, mockClient, agent.ToolVerbosityNone)
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}

	term := New(testAgent)

	// The mock client answers with plain content, so the turn completes
	// without touching stdin.
	if err := term.processTurn(context.Background(), "test input"); err != nil {
		t.Errorf("processTurn failed: %v", err)
	}

	msgs, err := sess.Messages()
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("Expected user + assistant messages persisted, got %d", len(msgs))
	}
}

func TestTerminalCallbacks(t *testing.T) {
	cfg := createTestConfig()
	mockClient := &llm.MockLLMClient{}

	testCases := []struct {
		name      string
		mode      agent.Mode
		verbosity agent.ToolVerbosity
	}{
		{"AutoModeNoVerbosity", agent.ModeAuto, agent.ToolVerbosityNone},
		{"AutoModeInfoVerbosity", agent.ModeAuto, agent.ToolVerbosityInfo},
		{"AutoModeAllVerbosity", agent.ModeAuto, agent.ToolVerbosityAll},
		{"PromptModeNoVerbosity", agent.ModePrompt, agent.ToolVerbosityNone},
		{"PromptModeAllVerbosity", agent.ModePrompt, agent.ToolVerbosityAll},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Chdir(t.TempDir())

			testSess := newTestSession(t, "test-session-"+tc.name)
			testAgent, err := agent.New(cfg, testSess, "default", tc.mode, mockClient, tc.verbosity)
			if err != nil {
				t.Fatalf("Failed to create agent: %v", err)
			}

			term := New(testAgent)
			if err := term.processTurn(context.Background(), "test input for "+tc.name); err != nil {
				t.Errorf("processTurn failed for %s: %v", tc.name, err)
			}
		})
	}
}

// TestPromptModeConfirmation drives a prompt-mode tool call end to end. The
// confirmation answer arrives on the terminal's own input scanner, the same
// one the main loop reads user lines from.
func TestPromptModeConfirmation(t *testing.T) {
	cases := []struct {
		name       string
		answer     string
		wantResult string
	}{
		{"approved", "y\n", "Weather in"},
		{"declined", "n\n", "Tool execution cancelled by user."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Chdir(t.TempDir())

			cfg := &config.Config{
				Toolsets: []config.Toolset{
					{Name: "default", Tools: []string{"get_weather"}},
				},
			}
			sess := newTestSession(t, "confirm-session")

			client := &scriptedLLM{replies: []*session.Message{
				{Role: "assistant", ToolCalls: []session.ToolCall{{
					ToolCallID: "call_1",
					Name:       "get_weather",
					Args:       json.RawMessage(`{"city":"Berlin"}`),
				}}},
				{Role: "assistant", Content: "All set."},
			}}
			testAgent, err := agent.New(cfg, sess, "default", agent.ModePrompt, client, agent.ToolVerbosityNone)
			if err != nil {
				t.Fatalf("Failed to create agent: %v", err)
			}

			term := New(testAgent)
			term.in = bufio.NewScanner(strings.NewReader(tc.answer))

			if err := term.processTurn(context.Background(), "what's the weather in Berlin?"); err != nil {
				t.Fatalf("processTurn failed: %v", err)
			}

			msgs, err := sess.Messages()
			if err != nil {
				t.Fatalf("Messages failed: %v", err)
			}
			// user, tool request, tool result, final answer
			if len(msgs) != 4 {
				t.Fatalf("Expected 4 messages, got %d: %+v", len(msgs), msgs)
			}
			if msgs[2].Role != "tool" || msgs[2].ToolCallID != "call_1" {
				t.Fatalf("Expected a linked tool result, got %+v", msgs[2])
			}
			if !strings.Contains(msgs[2].Content, tc.wantResult) {
				t.Errorf("Tool result %q does not contain %q", msgs[2].Content, tc.wantResult)
			}
		})
	}
}

func TestIsExitCommand(t *testing.T) {
	for _, input := range []string{"exit", "EXIT", "Exit", "/exit", "/quit"} {
		if !isExitCommand(input) {
			t.Errorf("Expected %q to be an exit command", input)
		}
	}
	for _, input := range []string{"exit now", "quit", "hello"} {
		if isExitCommand(input) {
			t.Errorf("Did not expect %q to be an exit command", input)
		}
	}
}
