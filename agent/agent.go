package agent

import (
	"context"
	stderrors "errors"

	"github.com/m4xw311/hearth/config"
	"github.com/m4xw311/hearth/errors"
	"github.com/m4xw311/hearth/llm"
	"github.com/m4xw311/hearth/session"
	"github.com/m4xw311/hearth/tools"
)

// Mode controls whether tool execution requires user confirmation.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

// ToolVerbosity controls how much tool execution detail the interaction
// surfaces show.
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// ErrTurnLimitExceeded is returned when a single turn burns through the
// configured maximum number of tool-call cycles without the model producing
// a final answer.
var ErrTurnLimitExceeded = stderrors.New("turn limit exceeded")

// ProcessCallbacks lets each interaction mode (terminal, ACP) decide how
// agent events are surfaced. Nil callbacks default to auto-execute and no
// output.
type ProcessCallbacks struct {
	// OnAssistantMessage receives the final content of the turn.
	OnAssistantMessage func(message string)

	// OnToolCall is invoked before a tool call is considered for execution.
	OnToolCall func(toolCall session.ToolCall)

	// OnToolResult is invoked after a tool executed, with its result.
	OnToolResult func(toolCall session.ToolCall, result string)

	// ShouldExecuteTool decides whether a proposed tool call runs. A
	// declined call is recorded as a cancelled tool result and the model
	// gets to react to the refusal.
	ShouldExecuteTool func(toolCall session.ToolCall) bool

	// OnWarning receives non-fatal notices.
	OnWarning func(warning string)
}

// Agent drives the conversation: it appends the user's message, asks the
// LLM for the next message and executes requested tools until the model
// produces a final answer. All state lives in the session store; the agent
// reloads the transcript from it on every completion call.
type Agent struct {
	Config         *config.Config
	Session        *session.Session
	LLMClient      llm.LLMClient
	AvailableTools []tools.Tool
	Mode           Mode
	Verbosity      ToolVerbosity
	MaxToolCycles  int

	registry   *tools.ToolRegistry
	dispatcher *tools.Dispatcher
}

// New assembles an agent from configuration: it builds the tool registry,
// resolves the active toolset and wires the dispatcher.
func New(cfg *config.Config, sess *session.Session, toolset string, mode Mode, client llm.LLMClient, verbosity ToolVerbosity) (*Agent, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}

	registry := tools.NewToolRegistry(cfg)
	activeTools, err := registry.GetActiveTools(ts)
	if err != nil {
		registry.Close()
		return nil, err
	}

	maxCycles := cfg.MaxToolCycles
	if maxCycles <= 0 {
		maxCycles = config.DefaultMaxToolCycles
	}

	return &Agent{
		Config:         cfg,
		Session:        sess,
		LLMClient:      client,
		AvailableTools: activeTools,
		Mode:           mode,
		Verbosity:      verbosity,
		MaxToolCycles:  maxCycles,
		registry:       registry,
		dispatcher:     tools.NewDispatcher(activeTools),
	}, nil
}

// Close stops any MCP servers the agent's registry started.
func (a *Agent) Close() {
	if a.registry != nil {
		a.registry.Close()
	}
}

// ProcessUserInput runs one full turn: user message in, final assistant
// content out through OnAssistantMessage, with any number of tool-call
// cycles in between. Every message is committed to the session store the
// moment it exists; an error aborts the turn but never rolls back committed
// appends.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, callbacks ProcessCallbacks) error {
	if err := a.repairTranscript(); err != nil {
		return err
	}

	if err := a.Session.Append(session.Message{Role: "user", Content: userInput}); err != nil {
		return err
	}

	for cycle := 0; cycle < a.MaxToolCycles; cycle++ {
		transcript, err := a.Session.Transcript()
		if err != nil {
			return err
		}

		reply, err := a.LLMClient.Chat(ctx, transcript, a.AvailableTools)
		if err != nil {
			return errors.Wrapf(err, "LLM chat failed")
		}
		if err := a.Session.Append(*reply); err != nil {
			return err
		}

		// A content-bearing reply ends the turn. When a provider returns
		// both content and tool calls, content takes precedence and the
		// tool calls are dropped.
		if reply.Content != "" || !reply.IsToolRequest() {
			if reply.IsToolRequest() {
				callbacks.warn("model returned content and tool calls together; keeping the content and dropping the tool calls")
			}
			if callbacks.OnAssistantMessage != nil {
				callbacks.OnAssistantMessage(reply.Content)
			}
			return nil
		}

		// One tool call per cycle: first call wins, the rest are dropped.
		call := reply.ToolCalls[0]
		if len(reply.ToolCalls) > 1 {
			callbacks.warn("model requested multiple tool calls; executing only the first")
		}
		if callbacks.OnToolCall != nil {
			callbacks.OnToolCall(call)
		}

		if callbacks.ShouldExecuteTool != nil && !callbacks.ShouldExecuteTool(call) {
			if err := a.Session.Append(session.Message{
				Role:       "tool",
				ToolCallID: call.ToolCallID,
				Content:    "Tool execution cancelled by user.",
			}); err != nil {
				return err
			}
			continue
		}

		result, err := a.dispatcher.Dispatch(ctx, call, userInput)
		if err != nil {
			// Fatal for the turn: no retry, no fallback tool. The dangling
			// tool request is closed by repairTranscript on the next turn.
			return err
		}
		if err := a.Session.Append(session.Message{
			Role:       "tool",
			ToolCallID: call.ToolCallID,
			Content:    result,
		}); err != nil {
			return err
		}
		if callbacks.OnToolResult != nil {
			callbacks.OnToolResult(call, result)
		}
	}

	return errors.Kindf(ErrTurnLimitExceeded, nil, "no final answer after %d tool cycles", a.MaxToolCycles)
}

// repairTranscript closes a dangling tool request left by an aborted or
// crashed turn. Without a matching tool result the providers reject the
// replayed transcript, so the unanswered call gets an explicit interruption
// marker before the next turn proceeds.
func (a *Agent) repairTranscript() error {
	msgs, err := a.Session.Messages()
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	last := msgs[len(msgs)-1]
	if last.Role != "assistant" || !last.IsToolRequest() {
		return nil
	}
	return a.Session.Append(session.Message{
		Role:       "tool",
		ToolCallID: last.ToolCalls[0].ToolCallID,
		Content:    "Tool execution was interrupted before a result was recorded.",
	})
}

func (c ProcessCallbacks) warn(msg string) {
	if c.OnWarning != nil {
		c.OnWarning(msg)
	}
}
