package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m4xw311/hearth/agent"
	"github.com/m4xw311/hearth/session"
)

// Terminal handles the interactive CLI mode for the agent. All input goes
// through one shared scanner; a second buffered reader on stdin could
// swallow lines queued for the other.
type Terminal struct {
	agent *agent.Agent
	in    *bufio.Scanner
}

// New creates a new Terminal instance reading from stdin.
func New(a *agent.Agent) *Terminal {
	return &Terminal{
		agent: a,
		in:    bufio.NewScanner(os.Stdin),
	}
}

// Run starts the interactive terminal session. Empty lines re-prompt
// without invoking the agent; "exit" (case-insensitive, with or without a
// leading slash) ends the session with success. Per-turn errors are printed
// and the loop continues with the next line.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	for {
		fmt.Print("You: ")
		if !t.in.Scan() {
			// EOF or read error ends the session
			break
		}

		userInput := strings.TrimSpace(t.in.Text())
		if userInput == "" {
			continue
		}

		if isExitCommand(userInput) {
			break
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	if err := t.in.Err(); err != nil {
		return err
	}

	return nil
}

func isExitCommand(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "/exit", "/quit":
		return true
	}
	return false
}

// processTurn handles a single user input turn.
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	callbacks := agent.ProcessCallbacks{
		OnAssistantMessage: func(message string) {
			fmt.Printf("Hearth: %s\n", message)
		},
		OnToolCall: func(toolCall session.ToolCall) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("Hearth wants to call tool `%s` with args: %s\n", toolCall.Name, string(toolCall.Args))
			} else if t.agent.Verbosity == agent.ToolVerbosityInfo {
				fmt.Printf("Hearth wants to call tool `%s`\n", toolCall.Name)
			}
		},
		OnToolResult: func(toolCall session.ToolCall, result string) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("Tool `%s` output: %s\n", toolCall.Name, result)
			}
		},
		ShouldExecuteTool: func(toolCall session.ToolCall) bool {
			// In prompt mode, ask for user confirmation
			if t.agent.Mode == agent.ModePrompt {
				fmt.Print("Do you want to allow this? (y/n): ")
				if !t.in.Scan() {
					return false
				}
				return strings.TrimSpace(strings.ToLower(t.in.Text())) == "y"
			}
			// In auto mode, always execute
			return true
		},
		OnWarning: func(warning string) {
			fmt.Printf("Warning: %s\n", warning)
		},
	}

	return t.agent.ProcessUserInput(ctx, userInput, callbacks)
}
